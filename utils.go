package vlmrun

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

var timeNow = time.Now

func isUUIDString(v any) bool {
	str, ok := v.(string)
	if !ok {
		return false
	}
	if len(str) != 32 && len(str) != 36 {
		return false
	}
	_, err := uuid.Parse(str)
	return err == nil
}

func isFilePath(val string) bool {
	if val == "" || isUUIDString(val) {
		return false
	}
	info, err := os.Stat(val)
	return err == nil && !info.IsDir()
}

func looksLikePath(val string) bool {
	return strings.Contains(val, "/") || strings.Contains(val, "\\") || strings.HasPrefix(val, ".")
}

func isHTTPURL(val string) bool {
	parsed, err := url.Parse(val)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}
