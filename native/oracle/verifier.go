package oracle

import (
	"bytes"
	"crypto/ed25519"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
)

// SignatureFacility identifies instructions produced by the signature
// verification facility. The binding checks below only trust records carrying
// this facility id; everything else in a batch is opaque.
const SignatureFacility = "ed25519.verify"

// Instruction is one entry of an authenticated instruction batch. Signature
// instructions carry the facility id and the packed record described below;
// the verifier treats any other facility as untrusted.
type Instruction struct {
	Facility string `json:"facility"`
	Data     []byte `json:"data"`
}

// Packed signature record layout, offsets in bytes:
//
//	[0]      signature count (must be 1)
//	[1]      padding
//	[2:4]    signature offset (little endian u16)
//	[4:6]    signature instruction index
//	[6:8]    public key offset
//	[8:10]   public key instruction index
//	[10:12]  message offset
//	[12:14]  message size
//	[14:16]  message instruction index
//	[16:]    payload (signature, public key, message)
const recordHeaderSize = 16

// NewSignatureInstruction packs a signed message into the canonical signature
// record. Producers (tests, clients) use this to assemble batches accepted by
// VerifyInstructionAt.
func NewSignatureInstruction(pub ed25519.PublicKey, signature []byte, message []byte) Instruction {
	data := make([]byte, recordHeaderSize, recordHeaderSize+ed25519.SignatureSize+ed25519.PublicKeySize+len(message))
	data[0] = 1
	sigOffset := recordHeaderSize
	pubOffset := sigOffset + ed25519.SignatureSize
	msgOffset := pubOffset + ed25519.PublicKeySize
	binary.LittleEndian.PutUint16(data[2:4], uint16(sigOffset))
	binary.LittleEndian.PutUint16(data[6:8], uint16(pubOffset))
	binary.LittleEndian.PutUint16(data[10:12], uint16(msgOffset))
	binary.LittleEndian.PutUint16(data[12:14], uint16(len(message)))
	data = append(data, signature...)
	data = append(data, pub...)
	data = append(data, message...)
	return Instruction{Facility: SignatureFacility, Data: data}
}

// DisputeMessage renders the canonical byte string an oracle signs when
// attesting a quality score for a transaction.
func DisputeMessage(transactionID string, qualityScore uint8) []byte {
	return []byte(fmt.Sprintf("%s:%d", transactionID, qualityScore))
}

// VerifyInstructionAt re-validates that the signature instruction at the given
// batch index binds exactly the supplied signature, signer and message. The
// cryptographic check itself happens earlier (VerifyBatch at the call
// boundary); this guards against substitution and reuse, where a valid record
// for the wrong message, signer or index is smuggled into a resolution.
func VerifyInstructionAt(batch []Instruction, index int, signature [64]byte, signer [32]byte, message []byte) error {
	if index < 0 || index >= len(batch) {
		return ErrInvalidSignature
	}
	ix := batch[index]
	if ix.Facility != SignatureFacility {
		return ErrInvalidSignature
	}
	sig, pub, msg, err := unpackRecord(ix.Data)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(sig, signature[:]) != 1 {
		return ErrInvalidSignature
	}
	if !bytes.Equal(pub, signer[:]) {
		return ErrInvalidSignature
	}
	if !bytes.Equal(msg, message) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyBatch cryptographically verifies every signature instruction in the
// batch against its own declared payload. The call boundary runs this before
// any resolution logic; a batch that fails here never reaches an engine.
func VerifyBatch(batch []Instruction) error {
	for _, ix := range batch {
		if ix.Facility != SignatureFacility {
			continue
		}
		sig, pub, msg, err := unpackRecord(ix.Data)
		if err != nil {
			return err
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
			return ErrInvalidSignature
		}
	}
	return nil
}

func unpackRecord(data []byte) (sig, pub, msg []byte, err error) {
	if len(data) < recordHeaderSize {
		return nil, nil, nil, ErrInvalidSignature
	}
	if data[0] != 1 {
		return nil, nil, nil, ErrInvalidSignature
	}
	sigOffset := int(binary.LittleEndian.Uint16(data[2:4]))
	pubOffset := int(binary.LittleEndian.Uint16(data[6:8]))
	msgOffset := int(binary.LittleEndian.Uint16(data[10:12]))
	msgSize := int(binary.LittleEndian.Uint16(data[12:14]))
	if sigOffset+ed25519.SignatureSize > len(data) {
		return nil, nil, nil, ErrInvalidSignature
	}
	if pubOffset+ed25519.PublicKeySize > len(data) {
		return nil, nil, nil, ErrInvalidSignature
	}
	if msgOffset+msgSize > len(data) {
		return nil, nil, nil, ErrInvalidSignature
	}
	sig = data[sigOffset : sigOffset+ed25519.SignatureSize]
	pub = data[pubOffset : pubOffset+ed25519.PublicKeySize]
	msg = data[msgOffset : msgOffset+msgSize]
	return sig, pub, msg, nil
}
