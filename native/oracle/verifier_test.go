package oracle

import (
	"crypto/ed25519"
	"errors"
	"testing"
)

func signedInstruction(t *testing.T, transactionID string, score uint8) (Instruction, [64]byte, [32]byte) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	message := DisputeMessage(transactionID, score)
	signature := ed25519.Sign(priv, message)

	var sig [64]byte
	copy(sig[:], signature)
	var signer [32]byte
	copy(signer[:], pub)
	return NewSignatureInstruction(pub, signature, message), sig, signer
}

func TestVerifyInstructionAt(t *testing.T) {
	inst, sig, signer := signedInstruction(t, "tx-123", 85)
	batch := []Instruction{inst}

	if err := VerifyInstructionAt(batch, 0, sig, signer, DisputeMessage("tx-123", 85)); err != nil {
		t.Fatalf("expected valid instruction, got %v", err)
	}
}

func TestVerifyInstructionAtRejectsTamperedSignature(t *testing.T) {
	inst, sig, signer := signedInstruction(t, "tx-123", 85)
	batch := []Instruction{inst}

	sig[0] ^= 0xff
	err := VerifyInstructionAt(batch, 0, sig, signer, DisputeMessage("tx-123", 85))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyInstructionAtRejectsWrongSigner(t *testing.T) {
	inst, sig, _ := signedInstruction(t, "tx-123", 85)
	batch := []Instruction{inst}

	var other [32]byte
	other[0] = 0x42
	err := VerifyInstructionAt(batch, 0, sig, other, DisputeMessage("tx-123", 85))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyInstructionAtRejectsWrongMessage(t *testing.T) {
	inst, sig, signer := signedInstruction(t, "tx-123", 85)
	batch := []Instruction{inst}

	err := VerifyInstructionAt(batch, 0, sig, signer, DisputeMessage("tx-123", 40))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyInstructionAtRejectsMissingIndex(t *testing.T) {
	inst, sig, signer := signedInstruction(t, "tx-123", 85)
	batch := []Instruction{inst}

	if err := VerifyInstructionAt(batch, 1, sig, signer, DisputeMessage("tx-123", 85)); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}

func TestVerifyInstructionAtRejectsForeignFacility(t *testing.T) {
	inst, sig, signer := signedInstruction(t, "tx-123", 85)
	inst.Facility = "memo"
	batch := []Instruction{inst}

	if err := VerifyInstructionAt(batch, 0, sig, signer, DisputeMessage("tx-123", 85)); err == nil {
		t.Fatal("expected error for non-signature facility")
	}
}

func TestVerifyInstructionAtRejectsTruncatedRecord(t *testing.T) {
	inst, sig, signer := signedInstruction(t, "tx-123", 85)
	inst.Data = inst.Data[:recordHeaderSize+10]
	batch := []Instruction{inst}

	if err := VerifyInstructionAt(batch, 0, sig, signer, DisputeMessage("tx-123", 85)); err == nil {
		t.Fatal("expected error for truncated record")
	}
}

func TestVerifyBatch(t *testing.T) {
	first, _, _ := signedInstruction(t, "tx-1", 70)
	second, _, _ := signedInstruction(t, "tx-2", 90)
	opaque := Instruction{Facility: "memo", Data: []byte("unrelated")}

	if err := VerifyBatch([]Instruction{first, opaque, second}); err != nil {
		t.Fatalf("expected batch to verify, got %v", err)
	}

	first.Data[len(first.Data)-1] ^= 0x01
	if err := VerifyBatch([]Instruction{first}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestDisputeMessageFormat(t *testing.T) {
	got := string(DisputeMessage("tx-abc", 7))
	if got != "tx-abc:7" {
		t.Fatalf("unexpected message %q", got)
	}
}
