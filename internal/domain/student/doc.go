// Package student содержит доменную модель студента: связь идентификатора
// в API школы с запечатанным токеном доступа и время последней синхронизации.
//
// Студент создаётся при первой успешной проверке токена, обновляется
// при каждой синхронизации и никогда не удаляется.
//
//	s, err := NewStudent("st-1024", now)
//	s.AttachToken(sealed)
//	s.MarkSynced(now)
package student
