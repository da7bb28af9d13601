package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// SchemaVersion se escribe en cada línea. Las líneas de un schema más nuevo
// se saltan en vez de adivinar su contenido.
const SchemaVersion = 1

// Kind indica qué lleva un envelope.
type Kind string

const (
	KindTrade    Kind = "trade"
	KindPosition Kind = "position"
	KindCapital  Kind = "capital"
)

// Envelope es una línea de un archivo de auditoría. Hash es el SHA-256 hex
// del JSON del envelope con Hash vacío. El orden de campos lo fija el struct
// y Data es JSON compacto, así que la codificación es canónica.
type Envelope struct {
	Schema int             `json:"schema"`
	Kind   Kind            `json:"kind"`
	Seq    uint64          `json:"seq"`
	Data   json.RawMessage `json:"data"`
	Hash   string          `json:"hash,omitempty"`
}

func (e Envelope) digest() (string, error) {
	e.Hash = ""
	canon, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// seal codifica v en una línea con hash, sin el salto de línea final.
func seal(kind Kind, seq uint64, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", kind, err)
	}
	env := Envelope{Schema: SchemaVersion, Kind: kind, Seq: seq, Data: data}
	if env.Hash, err = env.digest(); err != nil {
		return nil, fmt.Errorf("hash %s: %w", kind, err)
	}
	return json.Marshal(env)
}

// unseal parsea y verifica una línea. Cualquier fallo envuelve domain.ErrCorruptRecord.
func unseal(line []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domain.ErrCorruptRecord, err)
	}
	if env.Schema < 1 || env.Schema > SchemaVersion {
		return Envelope{}, fmt.Errorf("%w: unsupported schema %d", domain.ErrCorruptRecord, env.Schema)
	}
	if env.Hash == "" {
		return Envelope{}, fmt.Errorf("%w: missing hash", domain.ErrCorruptRecord)
	}
	want, err := env.digest()
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domain.ErrCorruptRecord, err)
	}
	if want != env.Hash {
		return Envelope{}, fmt.Errorf("%w: hash mismatch at seq %d", domain.ErrCorruptRecord, env.Seq)
	}
	return env, nil
}
