package content

import (
	"errors"
	"strings"
	"testing"

	"harmonika/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 0x49, 0x48, 0x44, 0x52}

const pngDataURI = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUg=="

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain text", "Halo Budi", "Halo Budi"},
		{"Script tag", "<script>alert('xss')</script>Halo", "Halo"},
		{"Complex HTML", "<a href='javascript:alert(1)'>Klik</a>", "Klik"},
		{"Emoji", "Terima kasih 🙏", "Terima kasih 🙏"},
		{"Apostrophe", "O'Brien", "O'Brien"},
		{"Ampersand", "Paket 20 & 50 Mbps", "Paket 20 & 50 Mbps"},
		{"Less than", "harga < 300rb?", "harga < 300rb?"},
		{"Quotes", `dia bilang "cepat"`, `dia bilang "cepat"`},
		{"Bold tag", "<b>penting</b> sekali", "penting sekali"},
		{"Literal entity", "ketik &lt;b&gt;", "ketik <b>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"Valid", "Budi", "Budi", false},
		{"Trimmed", "  Siti Rahma ", "Siti Rahma", false},
		{"Empty", "", "", true},
		{"Whitespace", " \t\n", "", true},
		{"Only markup", "<script>x</script>", "", true},
		{"Apostrophe", "O'Brien", "O'Brien", false},
		{"Ampersand", "Tom & Jerry", "Tom & Jerry", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var verr *models.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %T", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ValidateName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateMessage_KeepsPunctuation(t *testing.T) {
	text := "Paket 20 & 50 Mbps, harga < 300rb? Kata O'Brien \"oke\""
	got, err := ValidateMessage(models.MessageInput{Text: text})
	require.NoError(t, err)
	assert.Equal(t, text, got.Text)
}

func TestValidateMessage_LengthCountsPlainText(t *testing.T) {
	// Each '&' is one character of input, not five of "&amp;".
	text := strings.Repeat("&", MaxTextLength)
	got, err := ValidateMessage(models.MessageInput{Text: text})
	require.NoError(t, err)
	assert.Equal(t, text, got.Text)

	_, err = ValidateMessage(models.MessageInput{Text: text + "&"})
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   models.MessageInput
		wantErr bool
	}{
		{"Text", models.MessageInput{Text: "Internet saya mati"}, false},
		{"Empty", models.MessageInput{Text: ""}, true},
		{"Whitespace", models.MessageInput{Text: "   "}, true},
		{"Image", models.MessageInput{Text: ImageAttachmentText, AttachmentType: models.AttachmentTypeImage, AttachmentURL: pngDataURI}, false},
		{"Image without payload", models.MessageInput{Text: ImageAttachmentText, AttachmentType: models.AttachmentTypeImage}, true},
		{"Image not an image", models.MessageInput{Text: ImageAttachmentText, AttachmentType: models.AttachmentTypeImage, AttachmentURL: "data:image/png;base64,aGVsbG8gd29ybGQ="}, true},
		{"Image not a data URI", models.MessageInput{Text: ImageAttachmentText, AttachmentType: models.AttachmentTypeImage, AttachmentURL: "https://example.com/a.png"}, true},
		{"Location", models.MessageInput{Text: LocationAttachmentText, AttachmentType: models.AttachmentTypeLocation, AttachmentURL: "https://www.google.com/maps?q=-6.9,107.6"}, false},
		{"Location plain http", models.MessageInput{Text: LocationAttachmentText, AttachmentType: models.AttachmentTypeLocation, AttachmentURL: "http://maps.example.com"}, true},
		{"Payload without type", models.MessageInput{Text: "x", AttachmentURL: "https://www.google.com/maps?q=1,2"}, true},
		{"Unknown type", models.MessageInput{Text: "x", AttachmentType: "video", AttachmentURL: "https://example.com"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateMessage(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestImageDataURI(t *testing.T) {
	uri, err := ImageDataURI(pngHeader)
	require.NoError(t, err)
	assert.Equal(t, pngDataURI, uri)

	_, err = ImageDataURI([]byte("plain text"))
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestLocationURL(t *testing.T) {
	u, err := LocationURL(-6.9175, 107.6191)
	require.NoError(t, err)
	assert.Equal(t, "https://www.google.com/maps?q=-6.9175,107.6191", u)
	assert.NoError(t, ValidateAttachment(models.AttachmentTypeLocation, u))

	_, err = LocationURL(91, 0)
	assert.Error(t, err)
	_, err = LocationURL(0, -181)
	assert.Error(t, err)
}
