package qparams

import (
	"github.com/indigo-web/stitch/http/status"
	"github.com/indigo-web/stitch/kv"
	"github.com/indigo-web/utils/uf"
)

func Into(s *kv.Storage) CB {
	return func(k string, v string) {
		s.Add(k, v)
	}
}

type (
	CB      = func(k string, v string)
	Decoder = func(src, dst []byte) (decoded, buffer []byte, err error)
)

// Parse walks over `&`-separated key=value pairs, decoding both keys and values with the
// passed decoder. Keys without a value are reported with defFlagValue. Pairs parsed before
// an error are already reported via the callback.
func Parse(data, buff []byte, cb CB, decoder Decoder, defFlagValue string) (buffer []byte, err error) {
	var key string

parseKey:
	if len(data) == 0 {
		return buff, nil
	}

	var decoded []byte

	for i := 0; i < len(data); i++ {
		c := data[i]
		switch c {
		case '=':
			decoded, buff, err = decoder(data[:i], buff)
			if err != nil {
				return buff, err
			}
			if len(decoded) == 0 {
				return buff, status.ErrBadRequest
			}

			key = uf.B2S(decoded)
			data = data[i+1:]
			goto parseValue
		case '&':
			if i == 0 {
				// tolerate empty segments like a=b&&c=d
				data = data[1:]
				goto parseKey
			}

			decoded, buff, err = decoder(data[:i], buff)
			if err != nil {
				return buff, err
			}

			cb(uf.B2S(decoded), defFlagValue)
			data = data[i+1:]
			goto parseKey
		}

		if illegalSymbol(c) {
			return buff, status.ErrBadRequest
		}
	}

	decoded, buff, err = decoder(data, buff)
	if err != nil {
		return buff, err
	}

	cb(uf.B2S(decoded), defFlagValue)

	return buff, nil

parseValue:
	for i, c := range data {
		if c == '&' {
			decoded, buff, err = decoder(data[:i], buff)
			if err != nil {
				return buff, err
			}

			cb(key, uf.B2S(decoded))
			data = data[i+1:]
			goto parseKey
		} else if illegalSymbol(c) {
			return buff, status.ErrBadRequest
		}
	}

	decoded, buff, err = decoder(data, buff)
	if err != nil {
		return buff, err
	}

	cb(key, uf.B2S(decoded))

	return buff, nil
}

func illegalSymbol(c byte) bool {
	return c < 0x21 || c > 0x7e
}
