package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Token    TokenConfig    `mapstructure:"token"`
	Sale     SaleConfig     `mapstructure:"sale"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	TokenEvents string `mapstructure:"token_events"`
	SaleEvents  string `mapstructure:"sale_events"`
}

// TokenConfig 代币初始化配置
// 服务首次启动时据此铸造总供应量到管理员账户，之后不可变更
type TokenConfig struct {
	Name           string `mapstructure:"name"`
	Symbol         string `mapstructure:"symbol"`
	Decimals       int    `mapstructure:"decimals"`
	TotalSupply    string `mapstructure:"total_supply"`    // 总供应量（十进制字符串）
	OwnerAddress   string `mapstructure:"owner_address"`   // 代币所有者
	AdminAddress   string `mapstructure:"admin_address"`   // 管理员（持有初始供应量）
	SaleAllocation string `mapstructure:"sale_allocation"` // 默认授予销售方的额度
}

// SaleConfig 销售初始化配置
type SaleConfig struct {
	Rate            uint64 `mapstructure:"rate"`             // 兑换比例（每单位价值可得代币数）
	DurationHours   int    `mapstructure:"duration_hours"`   // 销售持续时间
	HardCap         string `mapstructure:"hard_cap"`         // 硬顶（累计筹集上限）
	MinContribution string `mapstructure:"min_contribution"` // 单笔最小出资
	ParticipantCap  string `mapstructure:"participant_cap"`  // 单人累计出资上限
	Beneficiary     string `mapstructure:"beneficiary"`      // 受益人地址
	OwnerAddress    string `mapstructure:"owner_address"`    // 销售所有者
	SaleAddress     string `mapstructure:"sale_address"`     // 销售方地址（持有代币授权额度）
}

type BusinessConfig struct {
	MaxRetryCount int `mapstructure:"max_retry_count"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}
