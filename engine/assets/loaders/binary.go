package loaders

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

var ErrInvalidSPIRV = errors.New("invalid SPIR-V bytecode")

// ShaderLoader reads SPIR-V bytecode files whole.
type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateSPIRV(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Resource{
		Name:     filepath.Base(path),
		FullPath: path,
		Type:     ResourceTypeShader,
		DataSize: uint64(len(data)),
		Data:     data,
	}, nil
}

// ValidateSPIRV checks the header magic and the word alignment of the code.
func ValidateSPIRV(code []byte) error {
	if len(code) < 20 || len(code)%4 != 0 {
		return fmt.Errorf("%w: size %d", ErrInvalidSPIRV, len(code))
	}
	if magic := binary.LittleEndian.Uint32(code); magic != SPIRVMagic {
		return fmt.Errorf("%w: magic %#08x", ErrInvalidSPIRV, magic)
	}
	return nil
}

// BytecodeWords reinterprets little endian bytecode as 32-bit words.
func BytecodeWords(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
