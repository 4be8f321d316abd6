package content

import (
	"bytes"
	"encoding/base64"
	"html"
	"net/url"
	"strconv"
	"strings"

	"harmonika/internal/models"

	"github.com/h2non/filetype"
	"github.com/microcosm-cc/bluemonday"
)

const (
	MaxImageBytes = 5 << 20
	MaxTextLength = 4000

	ImageAttachmentText    = "Image Attachment"
	LocationAttachmentText = "Shared Location"

	mapsURL = "https://www.google.com/maps"
)

var policy = bluemonday.StrictPolicy()

// Sanitize strips markup from user input such as names and messages and
// returns plain text. Entities are decoded so "O'Brien" and "20 & 50" are
// stored as typed; escaping belongs to whoever renders the text as HTML.
func Sanitize(input string) string {
	return html.UnescapeString(policy.Sanitize(input))
}

// ValidateName checks the customer name entered before a chat starts.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(Sanitize(name))
	if name == "" {
		return "", &models.ValidationError{Field: "userName", Reason: "name is required"}
	}
	return name, nil
}

// ValidateMessage trims and sanitizes the message text and checks its attachment.
func ValidateMessage(in models.MessageInput) (models.MessageInput, error) {
	text := strings.TrimSpace(Sanitize(in.Text))
	if text == "" {
		return in, &models.ValidationError{Field: "text", Reason: "message is empty"}
	}
	if len(text) > MaxTextLength {
		return in, &models.ValidationError{Field: "text", Reason: "message is too long"}
	}
	if err := ValidateAttachment(in.AttachmentType, in.AttachmentURL); err != nil {
		return in, err
	}
	in.Text = text
	return in, nil
}

// ValidateAttachment requires a payload exactly when a type is set.
// Images must be base64 data-URIs of a real image; locations must be https links.
func ValidateAttachment(kind models.AttachmentType, payload string) error {
	switch kind {
	case "":
		if payload != "" {
			return &models.ValidationError{Field: "attachmentType", Reason: "attachment type is required"}
		}
		return nil
	case models.AttachmentTypeImage:
		return validateImage(payload)
	case models.AttachmentTypeLocation:
		return validateLocation(payload)
	default:
		return &models.ValidationError{Field: "attachmentType", Reason: "unsupported attachment type " + string(kind)}
	}
}

func validateImage(payload string) error {
	header, data, ok := strings.Cut(payload, ",")
	if !ok || !strings.HasPrefix(header, "data:image/") || !strings.HasSuffix(header, ";base64") {
		return &models.ValidationError{Field: "attachmentUrl", Reason: "image must be a base64 data URI"}
	}
	if base64.StdEncoding.DecodedLen(len(data)) > MaxImageBytes {
		return &models.ValidationError{Field: "attachmentUrl", Reason: "image is too large"}
	}

	// The first bytes are enough to identify the format.
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	buf, err := base64.StdEncoding.DecodeString(head[:len(head)/4*4])
	if err != nil {
		return &models.ValidationError{Field: "attachmentUrl", Reason: "image is not valid base64"}
	}
	if !filetype.IsImage(buf) {
		return &models.ValidationError{Field: "attachmentUrl", Reason: "attachment is not an image"}
	}
	return nil
}

func validateLocation(payload string) error {
	u, err := url.Parse(payload)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return &models.ValidationError{Field: "attachmentUrl", Reason: "location must be an https link"}
	}
	return nil
}

// ImageDataURI encodes raw image bytes the way the widget sends uploads.
func ImageDataURI(data []byte) (string, error) {
	if len(data) > MaxImageBytes {
		return "", &models.ValidationError{Field: "image", Reason: "image is too large"}
	}
	kind, err := filetype.Match(data)
	if err != nil || !filetype.IsImage(data) {
		return "", &models.ValidationError{Field: "image", Reason: "attachment is not an image"}
	}

	var b bytes.Buffer
	b.WriteString("data:")
	b.WriteString(kind.MIME.Value)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String(), nil
}

// LocationURL builds the map link shared for a position.
func LocationURL(latitude, longitude float64) (string, error) {
	if latitude < -90 || latitude > 90 || longitude < -180 || longitude > 180 {
		return "", &models.ValidationError{Field: "location", Reason: "coordinates out of range"}
	}
	q := strconv.FormatFloat(latitude, 'f', -1, 64) + "," + strconv.FormatFloat(longitude, 'f', -1, 64)
	return mapsURL + "?q=" + q, nil
}
