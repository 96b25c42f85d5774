package scanner

import (
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"imagededup/errortracker"
)

// idNamespace seeds the sequential id scheme
var idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("imagededup"))

// idGenerator hands out image ids in ingestion order
type idGenerator func(ordinal int) string

func newIDGenerator(scheme string) (idGenerator, error) {
	switch scheme {
	case "", "sequential":
		return func(ordinal int) string {
			return uuid.NewSHA1(idNamespace, []byte(strconv.Itoa(ordinal))).String()
		}, nil
	case "random":
		return func(int) string { return uuid.NewString() }, nil
	default:
		return nil, errortracker.Config("unknown id scheme %q", scheme)
	}
}

// extensionOf returns the extension of an entry name as written, including the dot
func extensionOf(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if i := strings.LastIndex(base, "."); i > 0 {
		return base[i:]
	}
	return ""
}
