package domain

import "sort"

// AdminSet хранит множество привилегированных идентификаторов.
// Набор формируется один раз при старте процесса и дальше не меняется.
type AdminSet map[int64]struct{}

// NewAdminSet строит множество из списка идентификаторов.
func NewAdminSet(ids []int64) AdminSet {
	set := make(AdminSet, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// Contains проверяет, входит ли идентификатор в привилегированное множество.
func (s AdminSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// IDs возвращает идентификаторы в стабильном порядке для рассылки.
func (s AdminSet) IDs() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
