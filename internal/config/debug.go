package config

import "os"

func IsDebug() bool {
	return os.Getenv("OPPSBOT_DEBUG") == "1"
}
