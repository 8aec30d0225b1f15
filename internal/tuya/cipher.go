package tuya

import (
	"bytes"
	"crypto/aes"
	"crypto/md5" //nolint:gosec // required by the 3.1 wire format
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
)

// Supported protocol versions.
const (
	Version31 = "3.1"
	Version32 = "3.2"
	Version33 = "3.3"
)

// versionHeaderPad is the zero padding after the version in 3.2/3.3 headers.
const versionHeaderPad = 12

// checkVersion returns the canonical version string or ErrUnsupportedVersion.
// Numeric spellings such as "3.30" resolve to "3.3".
func checkVersion(v string) (string, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.Abs(f*10-math.Round(f*10)) > 1e-9 {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVersion, v)
	}
	switch canonical := strconv.FormatFloat(f, 'f', 1, 64); canonical {
	case Version31, Version32, Version33:
		return canonical, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVersion, v)
	}
}

func checkKey(key string) ([]byte, error) {
	if len(key) != aes.BlockSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKey, len(key))
	}
	return []byte(key), nil
}

// encryptECB encrypts plaintext with AES-128-ECB and PKCS#7 padding.
func encryptECB(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	data := make([]byte, len(plaintext)+pad)
	copy(data, plaintext)
	for i := len(plaintext); i < len(data); i++ {
		data[i] = byte(pad)
	}

	out := make([]byte, len(data))
	for i := 0; i < len(data); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], data[i:i+aes.BlockSize])
	}
	return out, nil
}

// decryptECB reverses encryptECB.
func decryptECB(key, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrInvalidFrame, len(ciphertext))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}

	pad := int(out[len(out)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, fmt.Errorf("%w: bad padding", ErrInvalidFrame)
	}
	if !bytes.Equal(out[len(out)-pad:], bytes.Repeat([]byte{byte(pad)}, pad)) {
		return nil, fmt.Errorf("%w: bad padding", ErrInvalidFrame)
	}
	return out[:len(out)-pad], nil
}

// sign31 returns the 16 hex character signature of a 3.1 CONTROL body.
func sign31(b64 []byte, key []byte) []byte {
	var pre bytes.Buffer
	pre.WriteString("data=")
	pre.Write(b64)
	pre.WriteString("||lpv=" + Version31 + "||")
	pre.Write(key)

	sum := md5.Sum(pre.Bytes()) //nolint:gosec // required by the 3.1 wire format
	return []byte(hex.EncodeToString(sum[:])[8:24])
}

// sealPayload encrypts a JSON body and adds the version header.
func sealPayload(version string, key, body []byte) ([]byte, error) {
	ciphertext, err := encryptECB(key, body)
	if err != nil {
		return nil, err
	}

	switch version {
	case Version31:
		b64 := make([]byte, base64.StdEncoding.EncodedLen(len(ciphertext)))
		base64.StdEncoding.Encode(b64, ciphertext)

		out := make([]byte, 0, len(Version31)+16+len(b64))
		out = append(out, Version31...)
		out = append(out, sign31(b64, key)...)
		return append(out, b64...), nil

	default:
		out := make([]byte, 0, len(version)+versionHeaderPad+len(ciphertext))
		out = append(out, version...)
		out = append(out, make([]byte, versionHeaderPad)...)
		return append(out, ciphertext...), nil
	}
}

// OpenPayload verifies and decrypts a CONTROL payload produced for the given
// version and key, returning the JSON body.
func OpenPayload(version, key string, payload []byte) ([]byte, error) {
	version, err := checkVersion(version)
	if err != nil {
		return nil, err
	}
	k, err := checkKey(key)
	if err != nil {
		return nil, err
	}

	if !bytes.HasPrefix(payload, []byte(version)) {
		return nil, fmt.Errorf("%w: missing %s header", ErrInvalidFrame, version)
	}
	rest := payload[len(version):]

	switch version {
	case Version31:
		if len(rest) < 16 {
			return nil, fmt.Errorf("%w: short 3.1 payload", ErrInvalidFrame)
		}
		sig, b64 := rest[:16], rest[16:]
		if !bytes.Equal(sig, sign31(b64, k)) {
			return nil, fmt.Errorf("%w: signature mismatch", ErrInvalidFrame)
		}
		ciphertext := make([]byte, base64.StdEncoding.DecodedLen(len(b64)))
		n, err := base64.StdEncoding.Decode(ciphertext, b64)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
		}
		return decryptECB(k, ciphertext[:n])

	default:
		if len(rest) < versionHeaderPad {
			return nil, fmt.Errorf("%w: short %s payload", ErrInvalidFrame, version)
		}
		return decryptECB(k, rest[versionHeaderPad:])
	}
}
