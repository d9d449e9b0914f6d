package crypto

import (
	"testing"

	"github.com/sage-x-project/sage/crypto/keys"
)

func genByKeyType(kt KeyType) (KeyPair, error) {
	switch kt {
	case KeyTypeEd25519:
		return keys.GenerateEd25519KeyPair()
	case KeyTypeSecp256k1:
		return keys.GenerateSecp256k1KeyPair()
	case KeyTypeX25519:
		return keys.GenerateX25519KeyPair()
	default:
		return keys.GenerateEd25519KeyPair()
	}
}

// FuzzKeyPairGeneration fuzzes key pair generation across the three
// software key types that don't require PIN/HSM setup.
func FuzzKeyPairGeneration(f *testing.F) {
	f.Add(uint8(0))
	f.Add(uint8(1))
	f.Add(uint8(2))

	f.Fuzz(func(t *testing.T, keyTypeByte uint8) {
		var keyType KeyType
		switch keyTypeByte % 3 {
		case 0:
			keyType = KeyTypeEd25519
		case 1:
			keyType = KeyTypeSecp256k1
		case 2:
			keyType = KeyTypeX25519
		}

		keyPair, err := genByKeyType(keyType)
		if err != nil {
			t.Fatalf("failed to generate key pair: %v", err)
		}
		if keyPair.PublicKey() == nil {
			t.Fatal("public key is nil")
		}
		if keyPair.Type() != keyType {
			t.Fatalf("key type mismatch: expected %s, got %s", keyType, keyPair.Type())
		}
	})
}

// FuzzSignAndVerify fuzzes signing and verification for Ed25519, the only
// one of the three software types above that both signs and has a
// single-shot Sign/Verify contract independent of any hash negotiation.
func FuzzSignAndVerify(f *testing.F) {
	f.Add([]byte("hello"))
	f.Add([]byte(""))
	f.Add([]byte("a"))
	f.Add(make([]byte, 1024))

	keyPair, err := keys.GenerateEd25519KeyPair()
	if err != nil {
		f.Fatalf("failed to generate seed key pair: %v", err)
	}

	f.Fuzz(func(t *testing.T, message []byte) {
		signature, err := keyPair.Sign(message)
		if err != nil {
			t.Fatalf("failed to sign message: %v", err)
		}

		if err := keyPair.Verify(message, signature); err != nil {
			t.Fatalf("failed to verify valid signature: %v", err)
		}

		if len(message) > 0 {
			modified := make([]byte, len(message))
			copy(modified, message)
			modified[0] ^= 0xFF
			if err := keyPair.Verify(modified, signature); err == nil {
				t.Fatal("verification succeeded for modified message")
			}
		}

		if len(signature) > 0 {
			modifiedSig := make([]byte, len(signature))
			copy(modifiedSig, signature)
			modifiedSig[0] ^= 0xFF
			if err := keyPair.Verify(message, modifiedSig); err == nil {
				t.Fatal("verification succeeded for modified signature")
			}
		}
	})
}

// FuzzSignatureWithDifferentKeys fuzzes cross-key verification rejection.
func FuzzSignatureWithDifferentKeys(f *testing.F) {
	f.Add([]byte("message"))

	keyPair1, err := keys.GenerateEd25519KeyPair()
	if err != nil {
		f.Fatalf("failed to generate key pair 1: %v", err)
	}
	keyPair2, err := keys.GenerateEd25519KeyPair()
	if err != nil {
		f.Fatalf("failed to generate key pair 2: %v", err)
	}

	f.Fuzz(func(t *testing.T, message []byte) {
		signature, err := keyPair1.Sign(message)
		if err != nil {
			t.Fatalf("failed to sign: %v", err)
		}

		if err := keyPair2.Verify(message, signature); err == nil {
			t.Fatal("verification succeeded with wrong key")
		}
		if err := keyPair1.Verify(message, signature); err != nil {
			t.Fatalf("verification failed with correct key: %v", err)
		}
	})
}

// FuzzInvalidSignatureData fuzzes Verify with arbitrary signature bytes to
// confirm it returns an error instead of panicking.
func FuzzInvalidSignatureData(f *testing.F) {
	f.Add([]byte("message"), []byte("invalid"))
	f.Add([]byte("test"), []byte(""))
	f.Add([]byte(""), []byte("sig"))

	keyPair, err := keys.GenerateEd25519KeyPair()
	if err != nil {
		f.Fatalf("failed to generate key pair: %v", err)
	}

	f.Fuzz(func(t *testing.T, message, invalidSig []byte) {
		_ = keyPair.Verify(message, invalidSig)
	})
}
