package engine

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// lookupEncoding resolves an IANA encoding name such as UTF-8, ISO-8859-1 or
// windows-1252.
func lookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(strings.TrimSpace(name))
	if err != nil {
		return nil, errors.Wrapf(err, "unknown encoding %q", name)
	}
	if enc == nil {
		return nil, errors.Errorf("unsupported encoding %q", name)
	}

	return enc, nil
}

// Decode converts raw script bytes in the named encoding to a UTF-8 string,
// dropping a leading byte order mark.
func Decode(data []byte, name string) (string, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return "", err
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", errors.Wrapf(err, "failed to decode script as %s", name)
	}

	return string(bytes.TrimPrefix(out, utf8BOM)), nil
}
