package schema

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Decoded holds account field values keyed by field name. Integer fields
// decode to uint64 or int64 at their declared width; no value ever passes
// through a float.
type Decoded map[string]interface{}

// Decode verifies the discriminator prefix and decodes the account data into
// field values, strictly in declared order.
func (a Account) Decode(data []byte) (Decoded, error) {
	disc := a.Discriminator()
	if len(data) < len(disc) {
		return nil, fmt.Errorf("account data too short for %s: %d bytes", a.Name, len(data))
	}
	if !bytes.Equal(data[:8], disc[:]) {
		return nil, fmt.Errorf("account data is not a %s: discriminator mismatch", a.Name)
	}

	dec := bin.NewBorshDecoder(data[8:])
	out := make(Decoded, len(a.Fields))
	for _, f := range a.Fields {
		val, err := decodeField(dec, f)
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", a.Name, f.Name, err)
		}
		out[f.Name] = val
	}
	return out, nil
}

func decodeField(dec *bin.Decoder, f Field) (interface{}, error) {
	switch f.Type {
	case TypeU8:
		v, err := dec.ReadUint8()
		return uint64(v), err
	case TypeU16:
		v, err := dec.ReadUint16(bin.LE)
		return uint64(v), err
	case TypeU32:
		v, err := dec.ReadUint32(bin.LE)
		return uint64(v), err
	case TypeU64:
		return dec.ReadUint64(bin.LE)
	case TypeI64:
		return dec.ReadInt64(bin.LE)
	case TypeBool:
		return dec.ReadBool()
	case TypePubkey:
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return nil, err
		}
		return solana.PublicKeyFromBytes(raw), nil
	case TypeString:
		return dec.ReadRustString()
	default:
		return nil, fmt.Errorf("unsupported field type %q", f.Type)
	}
}
