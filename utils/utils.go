package utils

import (
	"fmt"
	"os"
	"strconv"

	"github.com/segmentio/ksuid"
)

func EnvOrDefault(env, defaultVal string) string {
	e := os.Getenv(env)
	if e == "" {
		return defaultVal
	}
	return e
}

func EnvOrDefaultInt64(env string, defaultVal int64) (int64, error) {
	e := os.Getenv(env)
	if e == "" {
		return defaultVal, nil
	}
	intVar, err := strconv.ParseInt(e, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing %s as int64: %w", env, err)
	}
	return intVar, nil
}

// MustEnvOrDefaultInt64 panics on a malformed value, so it is only used for package level config.
func MustEnvOrDefaultInt64(env string, defaultVal int64) int64 {
	intVar, err := EnvOrDefaultInt64(env, defaultVal)
	if err != nil {
		panic(err)
	}
	return intVar
}

// EnvBool is true for any value strconv.ParseBool accepts as true.
func EnvBool(env string) bool {
	b, _ := strconv.ParseBool(os.Getenv(env))
	return b
}

// GenKSortedID generates a time-sortable ID with the given prefix, e.g. wf_2Nfk...
func GenKSortedID(prefix string) string {
	return prefix + ksuid.New().String()
}
