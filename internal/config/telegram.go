package config

// Alert sends ops alerts to a Telegram chat; without a token alerts are
// only logged.
type Alert struct {
	BotToken  string `env:"ALERT_BOT_TOKEN" json:"-"`
	ChatID    int64  `env:"ALERT_CHAT_ID"`
	QueueSize int    `env:"ALERT_QUEUE_SIZE" envDefault:"32"`
}

func (a Alert) Enabled() bool {
	return a.BotToken != "" && a.ChatID != 0
}
