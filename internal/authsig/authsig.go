// Package authsig signs and verifies API requests with secp256k1 keys.
//
// A request is signed with EIP-191 personal-sign over a canonical message:
//
//	quest-escrow/v1
//	<METHOD>
//	<path?query>
//	<unix seconds>
//	<keccak256(body) hex>
//
// The signer address, timestamp, and signature travel in the X-Quest-* headers.
package authsig

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	HeaderAddress   = "X-Quest-Address"
	HeaderTimestamp = "X-Quest-Timestamp"
	HeaderSignature = "X-Quest-Signature"

	messagePrefixV1 = "quest-escrow/v1"

	DefaultMaxSkew = 5 * time.Minute
)

var (
	ErrMissingHeaders   = errors.New("authsig: missing signature headers")
	ErrInvalidSignature = errors.New("authsig: invalid signature")
	ErrSignerMismatch   = errors.New("authsig: signature does not match address")
	ErrStale            = errors.New("authsig: timestamp outside allowed skew")
)

// Message is the canonical request content covered by a signature.
type Message struct {
	Method    string
	Path      string
	Timestamp int64
	Body      []byte
}

func (m Message) bytes() []byte {
	var b strings.Builder
	b.WriteString(messagePrefixV1)
	b.WriteByte('\n')
	b.WriteString(strings.ToUpper(m.Method))
	b.WriteByte('\n')
	b.WriteString(m.Path)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(m.Timestamp, 10))
	b.WriteByte('\n')
	b.WriteString(hexutil.Encode(crypto.Keccak256(m.Body)))
	return []byte(b.String())
}

// Digest is the EIP-191 personal-sign hash of the canonical message.
func (m Message) Digest() common.Hash {
	return common.BytesToHash(accounts.TextHash(m.bytes()))
}

// Sign returns a 65-byte signature r || s || v with v in {27, 28}.
func Sign(key *ecdsa.PrivateKey, m Message) ([]byte, error) {
	if key == nil {
		return nil, errors.New("authsig: nil private key")
	}
	d := m.Digest()
	sig, err := crypto.Sign(d[:], key)
	if err != nil {
		return nil, fmt.Errorf("authsig: sign: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// Recover returns the address that produced sig over m. v may be 0/1 or 27/28.
func Recover(m Message, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	s := make([]byte, len(sig))
	copy(s, sig)
	switch s[64] {
	case 0, 1:
	case 27, 28:
		s[64] -= 27
	default:
		return common.Address{}, fmt.Errorf("%w: bad v %d", ErrInvalidSignature, s[64])
	}
	d := m.Digest()
	pub, err := crypto.SigToPub(d[:], s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignRequest sets the X-Quest-* headers on req. body must be the exact bytes sent.
func SignRequest(req *http.Request, body []byte, key *ecdsa.PrivateKey, now time.Time) error {
	m := Message{
		Method:    req.Method,
		Path:      req.URL.RequestURI(),
		Timestamp: now.Unix(),
		Body:      body,
	}
	sig, err := Sign(key, m)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAddress, crypto.PubkeyToAddress(key.PublicKey).Hex())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(m.Timestamp, 10))
	req.Header.Set(HeaderSignature, hexutil.Encode(sig))
	return nil
}

// VerifyRequest authenticates r and returns the signer. The claimed address
// must equal the recovered one and the timestamp must be within maxSkew of now.
func VerifyRequest(r *http.Request, body []byte, now time.Time, maxSkew time.Duration) (common.Address, error) {
	signer, _, err := verifyRequest(r, body, now, maxSkew)
	return signer, err
}

func verifyRequest(r *http.Request, body []byte, now time.Time, maxSkew time.Duration) (common.Address, Message, error) {
	addrHex := strings.TrimSpace(r.Header.Get(HeaderAddress))
	tsRaw := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	sigHex := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if addrHex == "" || tsRaw == "" || sigHex == "" {
		return common.Address{}, Message{}, ErrMissingHeaders
	}
	if !common.IsHexAddress(addrHex) {
		return common.Address{}, Message{}, fmt.Errorf("%w: bad address", ErrInvalidSignature)
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return common.Address{}, Message{}, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew > maxSkew || skew < -maxSkew {
		return common.Address{}, Message{}, ErrStale
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, Message{}, fmt.Errorf("%w: bad hex", ErrInvalidSignature)
	}

	m := Message{
		Method:    r.Method,
		Path:      r.URL.RequestURI(),
		Timestamp: ts,
		Body:      body,
	}
	got, err := Recover(m, sig)
	if err != nil {
		return common.Address{}, Message{}, err
	}
	if got != common.HexToAddress(addrHex) {
		return common.Address{}, Message{}, ErrSignerMismatch
	}
	return got, m, nil
}
