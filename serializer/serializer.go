/**

common serialize/deserialize functions

 */
package serializer

import (
	"encoding/binary"
	"fmt"
	"io"
	"bufio"
	"time"
)

// writes the field length, then the field to the writer
func WriteFieldBytes(buf *bufio.Writer, bytes []byte) error {
	//write field length
	size := uint32(len(bytes))
	if err := binary.Write(buf, binary.LittleEndian, &size); err != nil {
		return err
	}
	// write field
	n, err := buf.Write(bytes)
	if err != nil {
		return err
	}
	if uint32(n) != size {
		return fmt.Errorf("unexpected num bytes written. Expected %v, got %v", size, n)
	}
	return nil
}

// read field bytes
func ReadFieldBytes(buf *bufio.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(buf, binary.LittleEndian, &size); err != nil {
		return nil, err
	}

	bytes := make([]byte, size)
	if _, err := io.ReadFull(buf, bytes); err != nil {
		return nil, err
	}
	return bytes, nil
}

func WriteFieldString(buf *bufio.Writer, str string) error {
	return WriteFieldBytes(buf, []byte(str))
}

func ReadFieldString(buf *bufio.Reader) (string, error) {
	bytes, err := ReadFieldBytes(buf)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func WriteUint32(buf *bufio.Writer, val uint32) error {
	return binary.Write(buf, binary.LittleEndian, &val)
}

func ReadUint32(buf *bufio.Reader) (uint32, error) {
	var val uint32
	if err := binary.Read(buf, binary.LittleEndian, &val); err != nil {
		return 0, err
	}
	return val, nil
}

func WriteUint64(buf *bufio.Writer, val uint64) error {
	return binary.Write(buf, binary.LittleEndian, &val)
}

func ReadUint64(buf *bufio.Reader) (uint64, error) {
	var val uint64
	if err := binary.Read(buf, binary.LittleEndian, &val); err != nil {
		return 0, err
	}
	return val, nil
}

func WriteBool(buf *bufio.Writer, val bool) error {
	b := byte(0)
	if val {
		b = byte(1)
	}
	return buf.WriteByte(b)
}

func ReadBool(buf *bufio.Reader) (bool, error) {
	b, err := buf.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// writes a timestamp with nanosecond precision
func WriteTime(buf *bufio.Writer, t time.Time) error {
	val := uint64(t.UnixNano())
	return binary.Write(buf, binary.LittleEndian, &val)
}

func ReadTime(buf *bufio.Reader) (time.Time, error) {
	var val uint64
	if err := binary.Read(buf, binary.LittleEndian, &val); err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, int64(val)), nil
}
