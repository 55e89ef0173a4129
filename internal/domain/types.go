package domain

type StoreDriverType int

const (
	Memory StoreDriverType = iota
	Postgres
)

var StoreDriverNameToType = map[string]StoreDriverType{
	"":           Memory,
	"mem":        Memory,
	"memory":     Memory,
	"pg":         Postgres,
	"postgres":   Postgres,
	"postgresql": Postgres,
}

// TP addresses a single partition of a topic.
type TP struct {
	Topic     string
	Partition int32
}

type TPSet map[TP]struct{}

func NewTPSet(tps ...TP) TPSet {
	s := make(TPSet, len(tps))
	for _, tp := range tps {
		s[tp] = struct{}{}
	}
	return s
}

func (s TPSet) Add(tp TP) {
	s[tp] = struct{}{}
}

func (s TPSet) Contains(tp TP) bool {
	_, ok := s[tp]
	return ok
}

func (s TPSet) Slice() []TP {
	res := make([]TP, 0, len(s))
	for tp := range s {
		res = append(res, tp)
	}
	return res
}

// Topics groups the partitions of a set by topic name, the shape
// the Kafka client wants for pause/resume calls.
func (s TPSet) Topics() map[string][]int32 {
	res := make(map[string][]int32)
	for tp := range s {
		res[tp.Topic] = append(res[tp.Topic], tp.Partition)
	}
	return res
}
