package main

import (
	"github.com/spf13/viper"

	"github.com/webcask/webcask/pkg/entity"
)

// openStore resolves the configured storage descriptor into a backend.
func openStore() (entity.Store, error) {
	return buildStore(viper.GetString("store"), entity.Options{
		TTL:          viper.GetDuration("ttl"),
		Region:       viper.GetString("store_region"),
		AccessKey:    viper.GetString("store_access_key"),
		SecretKey:    viper.GetString("store_secret_key"),
		SessionToken: viper.GetString("store_session_token"),
		Insecure:     viper.GetBool("store_insecure"),
		CacheEntries: viper.GetInt("cache_entries"),
		CacheTTL:     viper.GetDuration("cache_ttl"),
	})
}

func buildStore(descriptor string, opts entity.Options) (entity.Store, error) {
	return entity.Resolve(descriptor, opts)
}
