/*
Generic wire message interface and framing

Concrete message types register a constructor for their type code at
init time, so ReadMessage can reconstruct any message from a datagram
without importing the packages that define them.
*/
package message

import (
	"bufio"
	"fmt"
	"io"
	"bytes"
	"encoding/binary"
)

type MessageType uint32

type Message interface {
	Serialize(buf *bufio.Writer) error
	Deserialize(buf *bufio.Reader) error
	GetType() MessageType
}

type MessageError struct {
	reason string
}

func NewMessageError(format string, args ...interface{}) *MessageError {
	return &MessageError{reason: fmt.Sprintf(format, args...)}
}

func (e *MessageError) Error() string {
	return e.reason
}

var constructors = make(map[MessageType]func() Message)

// registers a constructor for the given message type. Called from
// the init function of the package defining the message
func RegisterMessage(mtype MessageType, constructor func() Message) {
	if _, exists := constructors[mtype]; exists {
		panic(fmt.Sprintf("duplicate message type registration: %v", mtype))
	}
	constructors[mtype] = constructor
}

// writes the message type, then the message itself
func WriteMessage(writer io.Writer, mes Message) error {
	buf := bufio.NewWriter(writer)
	mtype := uint32(mes.GetType())
	if err := binary.Write(buf, binary.LittleEndian, &mtype); err != nil {
		return err
	}
	if err := mes.Serialize(buf); err != nil {
		return err
	}
	return buf.Flush()
}

// reads a message off the given reader, dispatching on the type code
func ReadMessage(reader io.Reader) (Message, error) {
	buf := bufio.NewReader(reader)
	var mtype uint32
	if err := binary.Read(buf, binary.LittleEndian, &mtype); err != nil {
		return nil, err
	}

	constructor, exists := constructors[MessageType(mtype)]
	if !exists {
		return nil, NewMessageError("unknown message type: %v", mtype)
	}
	mes := constructor()
	if err := mes.Deserialize(buf); err != nil {
		return nil, err
	}
	return mes, nil
}

// serializes the message into a standalone datagram payload
func Encode(mes Message) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := WriteMessage(buf, mes); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// reconstructs a message from a datagram payload
func Decode(data []byte) (Message, error) {
	return ReadMessage(bytes.NewReader(data))
}
