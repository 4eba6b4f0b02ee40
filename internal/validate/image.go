package validate

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/laiskydev/respgate/internal/apperr"
)

// validateImagePayload confirms a base64 image block actually decodes to
// a recognized image format matching its declared media type, so a
// non-image payload disguised as an image block is rejected rather than
// forwarded opaquely (spec §4.4, §3 "image (opaque, forwarded as-is)").
func validateImagePayload(mediaType, data string) error {
	if mediaType == "" {
		return apperr.Validation("image block missing media_type")
	}
	if len(data) > maxTextBytes {
		return apperr.Validation("image payload exceeds 8 MiB")
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return apperr.New(apperr.KindValidation, "decode image base64 payload", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return apperr.New(apperr.KindValidation, "image payload is not a recognizable image", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return apperr.Validation("image payload has invalid dimensions")
	}
	if !mediaTypeMatchesFormat(mediaType, format) {
		return apperr.Validation("image media_type %q does not match detected format %q", mediaType, format)
	}
	return nil
}

func mediaTypeMatchesFormat(mediaType, format string) bool {
	switch format {
	case "jpeg":
		return mediaType == "image/jpeg" || mediaType == "image/jpg"
	case "png":
		return mediaType == "image/png"
	case "gif":
		return mediaType == "image/gif"
	case "webp":
		return mediaType == "image/webp"
	case "bmp":
		return mediaType == "image/bmp"
	default:
		return false
	}
}
