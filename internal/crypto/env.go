package crypto

import (
	"os"
	"strings"
)

func envKey() string {
	return strings.TrimSpace(os.Getenv(EnvKey))
}
