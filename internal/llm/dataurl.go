package llm

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// decodeImage accepts either a data URL ("data:image/png;base64,....") or a
// bare base64 payload, which is assumed to be JPEG.
func decodeImage(s string) ([]byte, string, error) {
	mime := "image/jpeg"
	payload := s
	if strings.HasPrefix(s, "data:") {
		header, data, ok := strings.Cut(s, ",")
		if !ok {
			return nil, "", fmt.Errorf("malformed data URL")
		}
		payload = data
		header = strings.TrimPrefix(header, "data:")
		header = strings.TrimSuffix(header, ";base64")
		if header != "" {
			mime = header
		}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("could not decode image payload: %w", err)
	}
	return data, mime, nil
}

// EncodeDataURL renders raw bytes as a base64 data URL.
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
