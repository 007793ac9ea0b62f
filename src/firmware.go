package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	Firmware resource loading and SIGMA bitstream
 *		unscrambling.  See spec.md sections 4.3.1 step 3 and 6.
 *
 * Description:	The persisted firmware resource loader is an external
 *		collaborator (spec.md section 1): this core only asks
 *		"give me the bytes of resource N" through FirmwareLoader.
 *
 *------------------------------------------------------------------*/

// maxFirmwareSize bounds any single firmware resource read, spec.md
// section 7 ("Resource" error kind).
const maxFirmwareSize = 256 * 1024

// FirmwareLoader is the external collaborator that resolves a named
// firmware/bitstream resource to its bytes (file on disk, embedded asset,
// network fetch -- this core does not care).
type FirmwareLoader interface {
	Load(name string) ([]byte, error)
}

func loadBounded(loader FirmwareLoader, name string) ([]byte, error) {
	var data, err = loader.Load(name)
	if err != nil {
		return nil, resourceErr("firmware.load", "loading %q: %w", name, err)
	}
	if len(data) == 0 {
		return nil, resourceErr("firmware.load", "resource %q is empty", name)
	}
	if len(data) > maxFirmwareSize {
		return nil, resourceErr("firmware.load", "resource %q is %d bytes, exceeds %d cap", name, len(data), maxFirmwareSize)
	}
	return data, nil
}

// sigmaUnscramble de-XORs a SIGMA bitstream with the keystream from
// spec.md 4.3.1 step 3: imm_{n+1} = ((imm_n + 0xa853753) mod 177) +
// imm_n*0x8034052, keeping the low 8 bits of each iterate, starting from
// imm_0 = 0x3f6df2ab. Byte n of the file is XORed with iterate n+1.
func sigmaUnscramble(data []byte) []byte {
	var out = make([]byte, len(data))
	var imm uint32 = 0x3f6df2ab
	for i, b := range data {
		imm = (imm+0xa853753)%177 + imm*0x8034052
		out[i] = b ^ byte(imm)
	}
	return out
}
