// Package security opens documents protected by the Standard security
// handler. Only decryption is supported; most protected files carry an
// empty user password and open without prompting.
package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/wudi/docseal/ir/raw"
)

var (
	ErrPasswordRequired = errors.New("document requires a password")
	ErrUnsupported      = errors.New("unsupported encryption")
)

// DataClass identifies the kind of payload being decrypted.
type DataClass int

const (
	DataClassStream DataClass = iota
	DataClassString
)

type cryptAlgo int

const (
	algoNone cryptAlgo = iota
	algoRC4
	algoAESV2
	algoAESV3
)

// Handler holds the parameters of an /Encrypt dictionary and, once
// authenticated, the file key.
type Handler struct {
	v, r        int
	keyLen      int
	o, u        []byte
	oe, ue      []byte
	p           int32
	fileID      []byte
	encryptMeta bool

	streamAlgo cryptAlgo
	stringAlgo cryptAlgo
	filters    map[string]cryptAlgo

	key []byte
}

// NewHandler reads the encryption parameters of doc.
func NewHandler(doc *raw.Document) (*Handler, error) {
	if doc == nil || doc.Trailer == nil {
		return nil, fmt.Errorf("%w: no trailer", ErrUnsupported)
	}
	enc := doc.Dict(doc.Trailer.Get("Encrypt"))
	if enc == nil {
		return nil, fmt.Errorf("%w: missing /Encrypt dictionary", ErrUnsupported)
	}
	if name, ok := doc.Name(enc.Get("Filter")); ok && name != "Standard" {
		return nil, fmt.Errorf("%w: filter %s", ErrUnsupported, name)
	}
	v, _ := doc.Int(enc.Get("V"))
	r, _ := doc.Int(enc.Get("R"))
	if v == 0 {
		v = 1
	}
	if r == 0 {
		r = 2
	}
	if v > 5 || r > 6 {
		return nil, fmt.Errorf("%w: V %d R %d", ErrUnsupported, v, r)
	}
	h := &Handler{v: v, r: r, encryptMeta: true}

	bits := 40
	if n, ok := doc.Int(enc.Get("Length")); ok && n > 0 {
		bits = n
	}
	switch {
	case v >= 5:
		bits = 256
	case v == 4 && bits < 128:
		bits = 128
	}
	if bits%8 != 0 || bits < 40 {
		return nil, fmt.Errorf("%w: key length %d", ErrUnsupported, bits)
	}
	h.keyLen = bits / 8

	h.o = stringValue(doc, enc.Get("O"))
	h.u = stringValue(doc, enc.Get("U"))
	h.oe = stringValue(doc, enc.Get("OE"))
	h.ue = stringValue(doc, enc.Get("UE"))
	if p, ok := doc.Number(enc.Get("P")); ok {
		h.p = int32(int64(p))
	}
	if b, ok := doc.Resolve(enc.Get("EncryptMetadata")).(raw.BoolObj); ok {
		h.encryptMeta = b.V
	}
	if ids := doc.Array(doc.Trailer.Get("ID")); ids != nil {
		h.fileID = stringValue(doc, ids.Get(0))
	}

	if v < 4 {
		h.streamAlgo, h.stringAlgo = algoRC4, algoRC4
		return h, nil
	}
	filters, err := cryptFilters(doc, enc)
	if err != nil {
		return nil, err
	}
	h.filters = filters
	if h.streamAlgo, err = h.named(nameValue(doc, enc.Get("StmF"))); err != nil {
		return nil, err
	}
	if h.stringAlgo, err = h.named(nameValue(doc, enc.Get("StrF"))); err != nil {
		return nil, err
	}
	return h, nil
}

// EncryptMetadata reports whether metadata streams are encrypted.
func (h *Handler) EncryptMetadata() bool { return h.encryptMeta }

// Authenticate derives the file key from password, tried first as the
// user password and then as the owner password.
func (h *Handler) Authenticate(password string) error {
	pwd := []byte(password)
	if h.r >= 5 {
		return h.authenticateAES256(pwd)
	}
	key := h.deriveKey(pwd)
	if h.checkUser(key) {
		h.key = key
		return nil
	}
	if user := h.userFromOwner(pwd); user != nil {
		key = h.deriveKey(user)
		if h.checkUser(key) {
			h.key = key
			return nil
		}
	}
	return ErrPasswordRequired
}

// Decrypt decrypts data belonging to object ref.
func (h *Handler) Decrypt(ref raw.ObjectRef, data []byte, class DataClass) ([]byte, error) {
	algo := h.streamAlgo
	if class == DataClassString {
		algo = h.stringAlgo
	}
	return h.decrypt(algo, ref, data)
}

// DecryptWithFilter decrypts stream data using a named crypt filter.
func (h *Handler) DecryptWithFilter(ref raw.ObjectRef, data []byte, filter string) ([]byte, error) {
	algo, err := h.named(filter)
	if err != nil {
		return nil, err
	}
	return h.decrypt(algo, ref, data)
}

func (h *Handler) decrypt(algo cryptAlgo, ref raw.ObjectRef, data []byte) ([]byte, error) {
	if h.key == nil {
		return nil, ErrPasswordRequired
	}
	if algo == algoNone || len(data) == 0 {
		return data, nil
	}
	key := h.objectKey(ref, algo)
	if algo == algoRC4 {
		return rc4Crypt(key, data)
	}
	return aesDecrypt(key, data)
}

// named maps a crypt filter name to its method. Missing names mean
// Identity.
func (h *Handler) named(name string) (cryptAlgo, error) {
	switch name {
	case "", "Identity":
		return algoNone, nil
	}
	if algo, ok := h.filters[name]; ok {
		return algo, nil
	}
	return algoNone, fmt.Errorf("%w: crypt filter %s not defined", ErrUnsupported, name)
}

func cryptFilters(doc *raw.Document, enc *raw.DictObj) (map[string]cryptAlgo, error) {
	out := make(map[string]cryptAlgo)
	cf := doc.Dict(enc.Get("CF"))
	for _, name := range cf.Keys() {
		entry := doc.Dict(cf.Get(name))
		if entry == nil {
			return nil, fmt.Errorf("%w: crypt filter %s is not a dictionary", ErrUnsupported, name)
		}
		method, _ := doc.Name(entry.Get("CFM"))
		switch method {
		case "", "None":
			out[name] = algoNone
		case "V2":
			out[name] = algoRC4
		case "AESV2":
			out[name] = algoAESV2
		case "AESV3":
			out[name] = algoAESV3
		default:
			return nil, fmt.Errorf("%w: crypt filter method %s", ErrUnsupported, method)
		}
	}
	return out, nil
}

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pwd)
	copy(padded[n:], passwordPadding)
	return padded
}

// deriveKey computes the RC4/AESV2 file key from a user password.
func (h *Handler) deriveKey(pwd []byte) []byte {
	data := make([]byte, 0, 32+len(h.o)+8+len(h.fileID))
	data = append(data, padPassword(pwd)...)
	data = append(data, h.o...)
	var pBuf [4]byte
	binary.LittleEndian.PutUint32(pBuf[:], uint32(h.p))
	data = append(data, pBuf[:]...)
	data = append(data, h.fileID...)
	if h.r >= 4 && !h.encryptMeta {
		data = append(data, 0xFF, 0xFF, 0xFF, 0xFF)
	}
	n := h.keyLen
	if h.r == 2 {
		n = 5
	}
	if n > 16 {
		n = 16
	}
	sum := md5.Sum(data)
	if h.r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(sum[:n])
		}
	}
	return append([]byte(nil), sum[:n]...)
}

// checkUser compares the /U entry against the value key produces.
func (h *Handler) checkUser(key []byte) bool {
	if len(h.u) < 16 {
		return false
	}
	if h.r == 2 {
		got, _ := rc4Crypt(key, passwordPadding)
		return len(h.u) >= 32 && bytes.Equal(got, h.u[:32])
	}
	sum := md5.Sum(append(append([]byte(nil), passwordPadding...), h.fileID...))
	val := sum[:]
	for i := 0; i < 20; i++ {
		val, _ = rc4Crypt(xorKey(key, byte(i)), val)
	}
	return bytes.Equal(val[:16], h.u[:16])
}

// userFromOwner recovers the padded user password from /O given the owner
// password.
func (h *Handler) userFromOwner(owner []byte) []byte {
	if len(h.o) < 32 {
		return nil
	}
	sum := md5.Sum(padPassword(owner))
	n := h.keyLen
	if h.r == 2 {
		n = 5
	}
	if n > 16 {
		n = 16
	}
	if h.r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(sum[:])
		}
	}
	key := sum[:n]
	user := append([]byte(nil), h.o[:32]...)
	if h.r == 2 {
		user, _ = rc4Crypt(key, user)
		return user
	}
	for i := 19; i >= 0; i-- {
		user, _ = rc4Crypt(xorKey(key, byte(i)), user)
	}
	return user
}

func (h *Handler) authenticateAES256(pwd []byte) error {
	if len(pwd) > 127 {
		pwd = pwd[:127]
	}
	if len(h.u) < 48 {
		return fmt.Errorf("%w: /U entry too short", ErrUnsupported)
	}
	if len(h.ue) >= 32 && bytes.Equal(h.hash(pwd, h.u[32:40], nil), h.u[:32]) {
		key, err := aesCBC(h.hash(pwd, h.u[40:48], nil), h.ue[:32])
		if err != nil {
			return err
		}
		h.key = key
		return nil
	}
	if len(h.o) >= 48 && len(h.oe) >= 32 && bytes.Equal(h.hash(pwd, h.o[32:40], h.u[:48]), h.o[:32]) {
		key, err := aesCBC(h.hash(pwd, h.o[40:48], h.u[:48]), h.oe[:32])
		if err != nil {
			return err
		}
		h.key = key
		return nil
	}
	return ErrPasswordRequired
}

// hash is the password hash of revisions 5 and 6.
func (h *Handler) hash(pwd, salt, udata []byte) []byte {
	input := append(append(append([]byte(nil), pwd...), salt...), udata...)
	sum := sha256.Sum256(input)
	k := sum[:]
	if h.r < 6 {
		return k
	}
	for round := 0; ; round++ {
		unit := append(append(append([]byte(nil), pwd...), k...), udata...)
		k1 := bytes.Repeat(unit, 64)
		block, err := aes.NewCipher(k[:16])
		if err != nil {
			return k[:32]
		}
		e := make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)
		mod := 0
		for _, b := range e[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			s := sha256.Sum256(e)
			k = s[:]
		case 1:
			s := sha512.Sum384(e)
			k = s[:]
		default:
			s := sha512.Sum512(e)
			k = s[:]
		}
		if round >= 63 && int(e[len(e)-1]) <= round-31 {
			break
		}
	}
	return k[:32]
}

func (h *Handler) objectKey(ref raw.ObjectRef, algo cryptAlgo) []byte {
	if algo == algoAESV3 || h.r >= 5 {
		return h.key
	}
	key := append([]byte(nil), h.key...)
	key = append(key,
		byte(ref.Num), byte(ref.Num>>8), byte(ref.Num>>16),
		byte(ref.Gen), byte(ref.Gen>>8))
	if algo == algoAESV2 {
		key = append(key, 0x73, 0x41, 0x6C, 0x54) // "sAlT"
	}
	sum := md5.Sum(key)
	n := len(h.key) + 5
	if n > 16 {
		n = 16
	}
	return sum[:n]
}

func xorKey(key []byte, b byte) []byte {
	out := make([]byte, len(key))
	for i := range key {
		out[i] = key[i] ^ b
	}
	return out
}

func rc4Crypt(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// aesDecrypt handles the IV-prefixed CBC payloads of AESV2 and AESV3.
// Bad padding is tolerated: the unpadded blocks are returned.
func aesDecrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) < 2*aes.BlockSize {
		if len(data) == aes.BlockSize {
			return nil, nil
		}
		return nil, errors.New("aes payload too short")
	}
	iv, ct := data[:aes.BlockSize], data[aes.BlockSize:]
	ct = ct[:len(ct)-len(ct)%aes.BlockSize]
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	if pad := int(out[len(out)-1]); pad > 0 && pad <= aes.BlockSize {
		out = out[:len(out)-pad]
	}
	return out, nil
}

// aesCBC decrypts the /UE or /OE key with a zero IV and no padding.
func aesCBC(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, data)
	return out, nil
}

func stringValue(doc *raw.Document, obj raw.Object) []byte {
	if s, ok := doc.Resolve(obj).(raw.StringObj); ok {
		return s.Bytes
	}
	return nil
}

func nameValue(doc *raw.Document, obj raw.Object) string {
	n, _ := doc.Name(obj)
	return n
}
