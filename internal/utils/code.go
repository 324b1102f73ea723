package utils

import "crypto/rand"

// codeAlphabet contains the characters used in confirmation codes.
// 0/O and 1/I are kept; codes are display data read back by humans at
// check-in together with the ticket ID, so ambiguity is tolerable.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// TicketCodeLength is the length of generated confirmation codes.
const TicketCodeLength = 8

// NewTicketCode returns a random uppercase alphanumeric confirmation
// code. Uniqueness is enforced by the database, not here: the tickets
// table carries a unique index on code and the issuer regenerates on
// collision.
func NewTicketCode() (string, error) {
	buf := make([]byte, TicketCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
