package utils

import (
	"crypto/sha256"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GenerateMessageID creates an RFC 5322 style message ID. Used for outbound
// mail and as a synthetic identity for stored messages whose Message-ID
// header is missing, so the unique index on message_id stays total.
func GenerateMessageID(domain, metadata string) string {
	id, err := gonanoid.Generate(nanoidAlphabet, 12)
	if err != nil {
		panic(err)
	}

	timestamp := time.Now().UnixMicro()

	var hashComponent string
	if metadata != "" {
		hash := sha256.Sum256([]byte(metadata))
		hashComponent = fmt.Sprintf(".%x", hash[:4])
	}

	localPart := fmt.Sprintf("%d.%s%s", timestamp, id, hashComponent)
	return fmt.Sprintf("%s@%s", localPart, domain)
}
