package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	viper.SetDefault("llm.endpoint", "http://localhost:11434")
	viper.SetDefault("llm.model", "llama3")
	viper.SetDefault("llm.request_timeout", 300*time.Second)

	viper.SetDefault("data_dir", "./data")
	viper.SetDefault("prompts_dir", "./prompts")
	viper.SetDefault("roles_file", "")

	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.interval", time.Minute)
	viper.SetDefault("scheduler.concurrency", 2)

	viper.SetDefault("server.bind", "127.0.0.1")
	viper.SetDefault("server.port", 8790)

	viper.SetDefault("tools.web_search.enabled", true)
	viper.SetDefault("tools.web_search.base_url", "")
	viper.SetDefault("tools.web_search.timeout", 20*time.Second)
	viper.SetDefault("tools.web_search.max_results", 5)

	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.base_url", "")
	viper.SetDefault("telegram.timeout", 30*time.Second)

	viper.SetDefault("smtp.host", "")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.username", "")
	viper.SetDefault("smtp.password", "")
	viper.SetDefault("smtp.from", "")
}
