package config

import (
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"github.com/haukened/vanish/internal/crypto"
)

// StringToAlgorithm is a DecodeHookFunc that converts a string to crypto.Algorithm.
// Values arriving from the defaults struct are already crypto.Algorithm and are
// normalized the same way as environment strings.
func StringToAlgorithm() mapstructure.DecodeHookFunc {
	algType := reflect.TypeOf(crypto.Algorithm(""))
	return func(f, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != algType {
			return data, nil
		}
		return crypto.ParseAlgorithm(reflect.ValueOf(data).String())
	}
}
