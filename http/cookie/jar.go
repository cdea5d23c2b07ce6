package cookie

import (
	"strings"

	"github.com/indigo-web/stitch/kv"
)

// Jar is a key-value storage for cookies received from a user-agent.
type Jar = *kv.Storage

func NewJar() Jar {
	return kv.New()
}

// Parse parses a Cookie header value into the jar. Pairs are separated by semicolons. Every
// pair that doesn't consist of exactly one `=` or has an empty name is silently dropped, so the
// parsing never fails.
func Parse(jar Jar, data string) Jar {
	for len(data) > 0 {
		var pair string
		if sc := strings.IndexByte(data, ';'); sc != -1 {
			pair, data = data[:sc], data[sc+1:]
		} else {
			pair, data = data, ""
		}

		pair = strings.TrimSpace(pair)
		if strings.Count(pair, "=") != 1 {
			continue
		}

		key, value, _ := strings.Cut(pair, "=")
		if len(key) == 0 {
			continue
		}

		jar.Set(key, value)
	}

	return jar
}
