package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/cortexmed/scriba/pkg/gateway/phone"
)

type phoneConfig struct {
	Phone struct {
		AccountSID string `mapstructure:"account_sid"`
		AuthToken  string `mapstructure:"auth_token"`
		PublicURL  string `mapstructure:"public_url"`
		VoicePath  string `mapstructure:"voice_path"`
	} `mapstructure:"phone"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "")
	from := flag.String("from", "", "")
	to := flag.String("to", "", "")
	voiceURL := flag.String("voice_url", "", "")
	flag.Parse()
	if *from == "" || *to == "" {
		fmt.Println("usage: make_call -from=+123 -to=+456 [-config=...]")
		os.Exit(1)
	}
	cfg, err := loadPhoneConfig(*configPath)
	if err != nil {
		fmt.Println("config error:", err)
		os.Exit(1)
	}
	dialer := phone.NewDialer(phone.Config{
		AccountSID: cfg.Phone.AccountSID,
		AuthToken:  cfg.Phone.AuthToken,
		PublicURL:  cfg.Phone.PublicURL,
		VoicePath:  cfg.Phone.VoicePath,
	})
	callSID, err := dialer.Dial(context.Background(), *to, *from, *voiceURL)
	if err != nil {
		fmt.Println("call error:", err)
		os.Exit(1)
	}
	fmt.Println("call_sid:", callSID)
}

func loadPhoneConfig(path string) (phoneConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return phoneConfig{}, err
	}
	var cfg phoneConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return phoneConfig{}, err
	}
	return cfg, nil
}
