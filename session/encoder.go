package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersionCurrent = 1

func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if len(s.PrincipalID) > 255 {
		return nil, errors.New("principalID too long")
	}
	buf.WriteByte(byte(len(s.PrincipalID)))
	buf.WriteString(s.PrincipalID)

	if len(s.Origin) > 255 {
		return nil, errors.New("origin too long")
	}
	buf.WriteByte(byte(len(s.Origin)))
	buf.WriteString(s.Origin)

	if len(s.UserAgent) > 255 {
		return nil, errors.New("user agent too long")
	}
	buf.WriteByte(byte(len(s.UserAgent)))
	buf.WriteString(s.UserAgent)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	principalLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	principalID := make([]byte, principalLen)
	if _, err := io.ReadFull(reader, principalID); err != nil {
		return nil, err
	}
	s.PrincipalID = string(principalID)

	originLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	origin := make([]byte, originLen)
	if _, err := io.ReadFull(reader, origin); err != nil {
		return nil, err
	}
	s.Origin = string(origin)

	uaLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	userAgent := make([]byte, uaLen)
	if _, err := io.ReadFull(reader, userAgent); err != nil {
		return nil, err
	}
	s.UserAgent = string(userAgent)

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}

	return s, nil
}
