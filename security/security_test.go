package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"errors"
	"testing"

	"github.com/wudi/docseal/ir/raw"
)

type fixture struct {
	v, r, bits  int
	cfm         string
	user, owner string
	encryptMeta bool
}

var (
	fileID      = []byte("0123456789abcdef")
	contentData = []byte("BT /F1 12 Tf (Hello) Tj ET")
	metaData    = []byte("<x:xmpmeta/>")
	plainData   = []byte("left alone")
)

// encryptedDoc builds a document protected with f. Object 2 is an
// encrypted content stream, 4 a metadata stream, 5 an Identity crypt
// filter stream and 6 an xref stream.
func encryptedDoc(t *testing.T, f fixture) *raw.Document {
	t.Helper()
	h := &Handler{v: f.v, r: f.r, keyLen: f.bits / 8, p: -44, fileID: fileID, encryptMeta: f.encryptMeta}
	algo := algoRC4
	if f.v >= 5 {
		algo = algoAESV3
		h.key = bytes.Repeat([]byte{0x5A}, 32)
		vsalt, ksalt := []byte("uvsalt01"), []byte("uksalt01")
		h.u = append(append(h.hash([]byte(f.user), vsalt, nil), vsalt...), ksalt...)
		h.ue = cbcEncrypt(t, h.hash([]byte(f.user), ksalt, nil), h.key)
		ovsalt, oksalt := []byte("ovsalt01"), []byte("oksalt01")
		h.o = append(append(h.hash([]byte(f.owner), ovsalt, h.u), ovsalt...), oksalt...)
		h.oe = cbcEncrypt(t, h.hash([]byte(f.owner), oksalt, h.u), h.key)
	} else {
		if f.cfm == "AESV2" {
			algo = algoAESV2
		}
		h.o = ownerEntry(f.r, h.keyLen, []byte(f.owner), []byte(f.user))
		h.key = h.deriveKey([]byte(f.user))
		h.u = userEntry(h.r, h.key)
	}
	seal := func(ref raw.ObjectRef, data []byte) []byte {
		key := h.objectKey(ref, algo)
		if algo == algoRC4 {
			out, _ := rc4Crypt(key, data)
			return out
		}
		return aesEncrypt(t, key, data)
	}

	enc := raw.Dict()
	enc.Set("Filter", raw.NameLiteral("Standard"))
	enc.Set("V", raw.NumberInt(int64(f.v)))
	enc.Set("R", raw.NumberInt(int64(f.r)))
	enc.Set("Length", raw.NumberInt(int64(f.bits)))
	enc.Set("O", raw.Str(h.o))
	enc.Set("U", raw.Str(h.u))
	enc.Set("P", raw.NumberInt(-44))
	if h.oe != nil {
		enc.Set("OE", raw.Str(h.oe))
		enc.Set("UE", raw.Str(h.ue))
	}
	if !f.encryptMeta {
		enc.Set("EncryptMetadata", raw.Bool(false))
	}
	if f.v >= 4 {
		std := raw.Dict()
		std.Set("CFM", raw.NameLiteral(f.cfm))
		cf := raw.Dict()
		cf.Set("StdCF", std)
		enc.Set("CF", cf)
		enc.Set("StmF", raw.NameLiteral("StdCF"))
		enc.Set("StrF", raw.NameLiteral("StdCF"))
	}

	ref := func(n int) raw.ObjectRef { return raw.ObjectRef{Num: n} }
	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Title", raw.Str(seal(ref(1), []byte("Certificate"))))
	catalog.Set("Kids", raw.NewArray(raw.Str(seal(ref(1), []byte("nested")))))

	meta := raw.Dict()
	meta.Set("Type", raw.NameLiteral("Metadata"))
	metaBody := metaData
	if f.encryptMeta {
		metaBody = seal(ref(4), metaData)
	}
	params := raw.Dict()
	params.Set("Name", raw.NameLiteral("Identity"))
	identity := raw.Dict()
	identity.Set("Filter", raw.NewArray(raw.NameLiteral("Crypt")))
	identity.Set("DecodeParms", raw.NewArray(params))
	xref := raw.Dict()
	xref.Set("Type", raw.NameLiteral("XRef"))

	trailer := raw.Dict()
	trailer.Set("Root", raw.Ref(1, 0))
	trailer.Set("Encrypt", raw.Ref(3, 0))
	trailer.Set("ID", raw.NewArray(raw.Str(fileID), raw.Str(fileID)))
	return &raw.Document{
		Objects: map[raw.ObjectRef]raw.Object{
			ref(1): catalog,
			ref(2): raw.NewStream(raw.Dict(), seal(ref(2), contentData)),
			ref(3): enc,
			ref(4): raw.NewStream(meta, metaBody),
			ref(5): raw.NewStream(identity, plainData),
			ref(6): raw.NewStream(xref, plainData),
		},
		Trailer:   trailer,
		Encrypted: true,
	}
}

func ownerEntry(r, keyLen int, owner, user []byte) []byte {
	if len(owner) == 0 {
		owner = user
	}
	sum := md5.Sum(padPassword(owner))
	n := keyLen
	if r == 2 {
		n = 5
	}
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(sum[:])
		}
	}
	key := sum[:n]
	out, _ := rc4Crypt(key, padPassword(user))
	if r >= 3 {
		for i := 1; i <= 19; i++ {
			out, _ = rc4Crypt(xorKey(key, byte(i)), out)
		}
	}
	return out
}

func userEntry(r int, key []byte) []byte {
	if r == 2 {
		out, _ := rc4Crypt(key, passwordPadding)
		return out
	}
	sum := md5.Sum(append(append([]byte(nil), passwordPadding...), fileID...))
	out := sum[:]
	for i := 0; i < 20; i++ {
		out, _ = rc4Crypt(xorKey(key, byte(i)), out)
	}
	return append(out, make([]byte, 16)...)
}

func aesEncrypt(t *testing.T, key, data []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pad := aes.BlockSize - len(data)%aes.BlockSize
	plain := append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(pad)}, pad)...)
	iv := bytes.Repeat([]byte{7}, aes.BlockSize)
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plain)
	return append(iv, out...)
}

func cbcEncrypt(t *testing.T, key, data []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, data)
	return out
}

var fixtures = []struct {
	name string
	f    fixture
}{
	{"rc4 40-bit", fixture{v: 1, r: 2, bits: 40, encryptMeta: true}},
	{"rc4 128-bit", fixture{v: 2, r: 3, bits: 128, encryptMeta: true}},
	{"rc4 crypt filter", fixture{v: 4, r: 4, bits: 128, cfm: "V2", encryptMeta: true}},
	{"aes-128 plain metadata", fixture{v: 4, r: 4, bits: 128, cfm: "AESV2"}},
	{"aes-256", fixture{v: 5, r: 6, bits: 256, cfm: "AESV3", encryptMeta: true}},
}

func TestDecrypt(t *testing.T) {
	for _, tt := range fixtures {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.f
			f.owner = "owner"
			doc := encryptedDoc(t, f)
			o := doc.Dict(raw.Ref(3, 0)).Get("O").(raw.StringObj)
			if err := Decrypt(context.Background(), doc, ""); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if doc.Encrypted {
				t.Fatalf("expected document to be marked decrypted")
			}
			catalog := doc.Catalog()
			if got := catalog.Get("Title").(raw.StringObj).Bytes; string(got) != "Certificate" {
				t.Fatalf("unexpected title %q", got)
			}
			kids := doc.Array(catalog.Get("Kids"))
			if got := kids.Get(0).(raw.StringObj).Bytes; string(got) != "nested" {
				t.Fatalf("unexpected nested string %q", got)
			}
			if got := doc.Stream(raw.Ref(2, 0)).Data; !bytes.Equal(got, contentData) {
				t.Fatalf("unexpected content %q", got)
			}
			if got := doc.Stream(raw.Ref(4, 0)).Data; !bytes.Equal(got, metaData) {
				t.Fatalf("unexpected metadata %q", got)
			}
			identity := doc.Stream(raw.Ref(5, 0))
			if !bytes.Equal(identity.Data, plainData) || identity.Dict.Get("Filter") != nil {
				t.Fatalf("unexpected identity stream %q %v", identity.Data, identity.Dict.KV)
			}
			if got := doc.Stream(raw.Ref(6, 0)).Data; !bytes.Equal(got, plainData) {
				t.Fatalf("unexpected xref stream %q", got)
			}
			if got := doc.Dict(raw.Ref(3, 0)).Get("O").(raw.StringObj); !bytes.Equal(got.Bytes, o.Bytes) {
				t.Fatalf("encrypt dictionary was modified")
			}
		})
	}
}

func TestDecryptPasswords(t *testing.T) {
	for _, tt := range fixtures {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.f
			f.user, f.owner = "user-pw", "owner-pw"

			doc := encryptedDoc(t, f)
			if err := Decrypt(context.Background(), doc, ""); !errors.Is(err, ErrPasswordRequired) {
				t.Fatalf("unexpected error: %v", err)
			}
			if !doc.Encrypted {
				t.Fatalf("failed decrypt must leave the document encrypted")
			}

			for _, pw := range []string{"user-pw", "owner-pw"} {
				doc := encryptedDoc(t, f)
				if err := Decrypt(context.Background(), doc, pw); err != nil {
					t.Fatalf("unexpected error with %q: %v", pw, err)
				}
				if got := doc.Stream(raw.Ref(2, 0)).Data; !bytes.Equal(got, contentData) {
					t.Fatalf("unexpected content with %q: %q", pw, got)
				}
			}
		})
	}
}

func TestDecryptCanceled(t *testing.T) {
	doc := encryptedDoc(t, fixture{v: 2, r: 3, bits: 128, encryptMeta: true})
	for i := 10; i < 600; i++ {
		doc.Objects[raw.ObjectRef{Num: i}] = raw.NumberInt(int64(i))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Decrypt(ctx, doc, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecryptPlainDocument(t *testing.T) {
	doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{}, Trailer: raw.Dict()}
	if err := Decrypt(context.Background(), doc, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewHandlerUnsupported(t *testing.T) {
	tests := []struct {
		name string
		edit func(enc *raw.DictObj)
	}{
		{"public key handler", func(enc *raw.DictObj) { enc.Set("Filter", raw.NameLiteral("Adobe.PubSec")) }},
		{"future version", func(enc *raw.DictObj) { enc.Set("V", raw.NumberInt(7)) }},
		{"odd key length", func(enc *raw.DictObj) { enc.Set("Length", raw.NumberInt(132)) }},
		{"unknown method", func(enc *raw.DictObj) {
			enc.Get("CF").(*raw.DictObj).Get("StdCF").(*raw.DictObj).Set("CFM", raw.NameLiteral("ChaCha"))
		}},
		{"undefined filter", func(enc *raw.DictObj) { enc.Set("StmF", raw.NameLiteral("Missing")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := encryptedDoc(t, fixture{v: 4, r: 4, bits: 128, cfm: "AESV2", encryptMeta: true})
			tt.edit(doc.Dict(raw.Ref(3, 0)))
			if _, err := NewHandler(doc); !errors.Is(err, ErrUnsupported) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}

	doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{}, Trailer: raw.Dict(), Encrypted: true}
	if _, err := NewHandler(doc); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("unexpected error without /Encrypt: %v", err)
	}
}

func TestAESDecryptTolerance(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 16)
	if out, err := aesDecrypt(key, make([]byte, aes.BlockSize)); err != nil || out != nil {
		t.Fatalf("unexpected result %q %v", out, err)
	}
	if _, err := aesDecrypt(key, make([]byte, 20)); err == nil {
		t.Fatalf("expected short payload error")
	}
	sealed := aesEncrypt(t, key, []byte("sixteen byte msg"))
	out, err := aesDecrypt(key, sealed)
	if err != nil || string(out) != "sixteen byte msg" {
		t.Fatalf("unexpected result %q %v", out, err)
	}
}
