/*
The application state machine chosen commands are applied onto
*/
package store

import (
	"bufio"
	"bytes"
	"time"
)

import (
	"github.com/qkniep/multi-paxos/serializer"
)

// StateMachine applies chosen commands in slot order. Apply must be
// deterministic: the same command sequence produces the same state on
// every replica. The result is opaque to the replication layer
type StateMachine interface {
	Apply(command []byte) ([]byte, error)
}

// an instruction to be executed against
// the store. These objects should be
// considered immutable once instantiated
type Instruction struct {
	Cmd       string
	Key       string
	Args      []string
	Timestamp time.Time
}

// creates a new instruction
func NewInstruction(cmd string, key string, args []string, timestamp time.Time) *Instruction {
	return &Instruction{
		Cmd:       cmd,
		Key:       key,
		Args:      args,
		Timestamp: timestamp,
	}
}

// instruction equality test
func (i *Instruction) Equal(o *Instruction) bool {
	if i.Cmd != o.Cmd {
		return false
	}
	if i.Key != o.Key {
		return false
	}
	if len(i.Args) != len(o.Args) {
		return false
	}
	for n := 0; n < len(i.Args); n++ {
		if i.Args[n] != o.Args[n] {
			return false
		}
	}
	if !i.Timestamp.Equal(o.Timestamp) {
		return false
	}
	return true
}

func (i *Instruction) Copy() *Instruction {
	newInstr := &Instruction{
		Cmd:       i.Cmd,
		Key:       i.Key,
		Args:      make([]string, len(i.Args)),
		Timestamp: i.Timestamp,
	}
	copy(newInstr.Args, i.Args)
	return newInstr
}

func (i *Instruction) Serialize(buf *bufio.Writer) error {
	if err := serializer.WriteFieldString(buf, i.Cmd); err != nil {
		return err
	}
	if err := serializer.WriteFieldString(buf, i.Key); err != nil {
		return err
	}
	if err := serializer.WriteUint32(buf, uint32(len(i.Args))); err != nil {
		return err
	}
	for _, arg := range i.Args {
		if err := serializer.WriteFieldString(buf, arg); err != nil {
			return err
		}
	}
	return serializer.WriteTime(buf, i.Timestamp)
}

func (i *Instruction) Deserialize(buf *bufio.Reader) error {
	var err error
	if i.Cmd, err = serializer.ReadFieldString(buf); err != nil {
		return err
	}
	if i.Key, err = serializer.ReadFieldString(buf); err != nil {
		return err
	}
	numArgs, err := serializer.ReadUint32(buf)
	if err != nil {
		return err
	}
	i.Args = make([]string, 0, numArgs)
	for n := uint32(0); n < numArgs; n++ {
		arg, err := serializer.ReadFieldString(buf)
		if err != nil {
			return err
		}
		i.Args = append(i.Args, arg)
	}
	i.Timestamp, err = serializer.ReadTime(buf)
	return err
}

// encodes the instruction into a standalone command payload
func (i *Instruction) Encode() ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := bufio.NewWriter(buf)
	if err := i.Serialize(writer); err != nil {
		return nil, err
	}
	if err := writer.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodes an instruction from a command payload
func DecodeInstruction(data []byte) (*Instruction, error) {
	instr := &Instruction{}
	if err := instr.Deserialize(bufio.NewReader(bytes.NewReader(data))); err != nil {
		return nil, err
	}
	return instr, nil
}
