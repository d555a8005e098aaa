package submission

// State описывает шаг диалога подачи заявки.
type State int

const (
	StateNickname State = iota + 1
	StateImageCount
	StateImage
	StateProof
	StatePeopleCount
	StateSource
	StateConfirm
)

// Draft хранит незавершённую заявку пользователя. Живёт только в памяти
// на время диалога; в БД сразу попадает только никнейм.
type Draft struct {
	State       State
	Nickname    string
	ImageCount  int
	Images      []string
	ProofFileID string
	PeopleCount int
	Source      string
}

// Keyboard подсказывает адаптеру, какую клавиатуру приложить к ответу.
type Keyboard int

const (
	KeyboardNone Keyboard = iota
	KeyboardSources
	KeyboardConfirm
)

// Reply — ответ движка на событие диалога.
type Reply struct {
	Text     string
	Keyboard Keyboard
}
