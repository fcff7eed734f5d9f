package bluetooth

import (
	"context"
	"fmt"
	"net"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// MacAddress holds the Bluetooth device address, in display order.
type MacAddress [6]byte

// ParseMAC parses an address of the form "AA:BB:CC:DD:EE:FF".
func ParseMAC(s string) (MacAddress, error) {
	var addr MacAddress

	hw, err := net.ParseMAC(s)
	if err != nil || len(hw) != len(addr) {
		if err == nil {
			err = fault.New("address is not 6 bytes long")
		}

		return addr, fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "parse-address", "address", s),
			ftag.With(ftag.InvalidArgument),
			fmsg.With("Invalid Bluetooth address"),
		)
	}

	copy(addr[:], hw)

	return addr, nil
}

// MustParseMAC is like ParseMAC but panics on invalid input.
func MustParseMAC(s string) MacAddress {
	addr, err := ParseMAC(s)
	if err != nil {
		panic(err)
	}

	return addr
}

// String converts a MacAddress to its upper-case, colon separated form.
func (m MacAddress) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsNil reports whether the address is all zeroes.
func (m MacAddress) IsNil() bool {
	return m == MacAddress{}
}

// Reversed returns the address in little-endian (BD_ADDR) byte order,
// as the kernel's Bluetooth socket structures expect it.
func (m MacAddress) Reversed() [6]byte {
	var b [6]byte
	for i := range m {
		b[i] = m[len(m)-1-i]
	}

	return b
}

// MarshalText implements encoding.TextMarshaler.
func (m MacAddress) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MacAddress) UnmarshalText(text []byte) error {
	addr, err := ParseMAC(string(text))
	if err != nil {
		return err
	}

	*m = addr

	return nil
}
