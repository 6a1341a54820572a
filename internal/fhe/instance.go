// Package fhe defines the opaque instance capability handed out by the
// instance builder.
package fhe

// DefaultPublicParamsBits is the public params size persisted alongside the
// public key.
const DefaultPublicParamsBits = 2048

// Instance is a ready-to-use confidential-computation client. Its
// encrypt/decrypt surface belongs to the engine that produced it; the
// lifecycle code only reads the key material it reports.
type Instance interface {
	// PublicKey returns the network public key the instance was built with.
	PublicKey() string
	// PublicParams returns the serialized public params for the given size.
	PublicParams(bits int) string
}
