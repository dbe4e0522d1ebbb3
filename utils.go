package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"freeimages/config"
)

// imageMessage is the signed form of an optimizer request.
func imageMessage(source string, width, quality int) string {
	return fmt.Sprintf("%s:%d:%d", source, width, quality)
}

func imageMAC(cfg config.Signing, message string) []byte {
	mac := hmac.New(sha256.New, []byte(cfg.Secret))
	mac.Write([]byte(message))
	mac.Write([]byte(cfg.Salt))
	return mac.Sum(nil)
}

func hmacVerify(cfg config.Signing, message string, messageMAC string) bool {
	messageMACBytes, err := base64.RawURLEncoding.DecodeString(messageMAC)
	if err != nil {
		return false
	}
	return hmac.Equal(messageMACBytes, imageMAC(cfg, message))
}
