// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "LansoScan-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "lansoscan.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)

	viper.SetDefault("gemini.apikey", "")
	viper.SetDefault("gemini.model", "gemini-1.5-flash")
	viper.SetDefault("gemini.endpoint", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("gemini.temperature", 0.4)
	viper.SetDefault("gemini.topk", 32)
	viper.SetDefault("gemini.topp", 1.0)
	viper.SetDefault("gemini.maxoutputtokens", 1024)
	viper.SetDefault("gemini.safetythreshold", "BLOCK_MEDIUM_AND_ABOVE")
	viper.SetDefault("gemini.timeout", 30*time.Second)
	viper.SetDefault("gemini.ratelimitms", 1000)
	viper.SetDefault("gemini.cachettl", 15*time.Minute)

	viper.SetDefault("analysis.jpegquality", 85)
	viper.SetDefault("analysis.maxdimension", 1024)
	viper.SetDefault("analysis.thumbnailsize", 256)
	viper.SetDefault("analysis.minconfidence", 0.5)

	viper.SetDefault("storage.imagespath", "images/")
	viper.SetDefault("storage.thumbnailspath", "thumbnails/")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "lansoscan.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "lansoscan")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "lansoscan")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", 3306)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.log.enabled", false)
	viper.SetDefault("webserver.log.path", "webserver.log")
	viper.SetDefault("webserver.log.rotation", RotationDaily)
	viper.SetDefault("webserver.log.maxsize", 1048576)

	viper.SetDefault("cleanup.interval", 24*time.Hour)
	viper.SetDefault("cleanup.dryrun", false)
}
