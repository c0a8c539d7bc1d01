package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	tokensFormatVersionCurrent = 1

	userFormatVersionCurrent = 2
	userFormatVersionV1      = 1
)

const userFlagVerified byte = 1 << 0

var errRecordTruncated = errors.New("session record truncated")

// EncodeTokens serialises the token pair record.
func EncodeTokens(t Tokens) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(tokensFormatVersionCurrent)
	if err := writeString16(&buf, t.AccessToken); err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}
	if err := writeString16(&buf, t.RefreshToken); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeTokens parses a token pair record.
func DecodeTokens(data []byte) (Tokens, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return Tokens{}, errRecordTruncated
	}
	if version != tokensFormatVersionCurrent {
		return Tokens{}, fmt.Errorf("unsupported token record version %d", version)
	}

	var t Tokens
	if t.AccessToken, err = readString16(reader); err != nil {
		return Tokens{}, err
	}
	if t.RefreshToken, err = readString16(reader); err != nil {
		return Tokens{}, err
	}
	if reader.Len() != 0 {
		return Tokens{}, errors.New("trailing bytes in token record")
	}

	return t, nil
}

// EncodeUser serialises the user identity record at the current version.
func EncodeUser(u User) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(userFormatVersionCurrent)

	if len(u.ID) > 255 {
		return nil, errors.New("user id too long")
	}
	buf.WriteByte(byte(len(u.ID)))
	buf.WriteString(u.ID)

	buf.WriteByte(byte(u.Role))

	var flags byte
	if u.Verified {
		flags |= userFlagVerified
	}
	buf.WriteByte(flags)

	if err := writeString16(&buf, u.Email); err != nil {
		return nil, fmt.Errorf("email: %w", err)
	}
	if err := writeString16(&buf, u.Name); err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeUser parses a user identity record. Version 1 records carry no display name.
func DecodeUser(data []byte) (User, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return User{}, errRecordTruncated
	}
	if version != userFormatVersionCurrent && version != userFormatVersionV1 {
		return User{}, fmt.Errorf("unsupported user record version %d", version)
	}

	idLen, err := reader.ReadByte()
	if err != nil {
		return User{}, errRecordTruncated
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return User{}, errRecordTruncated
	}

	role, err := reader.ReadByte()
	if err != nil {
		return User{}, errRecordTruncated
	}
	if Role(role) > RoleAdmin {
		return User{}, fmt.Errorf("invalid role byte %d", role)
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return User{}, errRecordTruncated
	}

	u := User{
		ID:       string(id),
		Role:     Role(role),
		Verified: flags&userFlagVerified != 0,
	}
	if u.Email, err = readString16(reader); err != nil {
		return User{}, err
	}
	if version == userFormatVersionCurrent {
		if u.Name, err = readString16(reader); err != nil {
			return User{}, err
		}
	}
	if reader.Len() != 0 {
		return User{}, errors.New("trailing bytes in user record")
	}

	return u, nil
}

func writeString16(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return errors.New("field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString16(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", errRecordTruncated
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", errRecordTruncated
	}
	return string(raw), nil
}
