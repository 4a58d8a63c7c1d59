package report

// Stage is one of the fixed learning stages a student picks from.
type Stage struct {
	Key   string // callback payload
	Label string // button text
	Value string // what gets stored in reports.current_stage
}

var Stages = []Stage{
	{Key: "block1", Label: "📚 Изучение материалов - Блок 1. Основы языка", Value: "Изучение материалов - Блок 1. Основы языка"},
	{Key: "block2", Label: "📚 Изучение материалов - Блок 2. ООП", Value: "Изучение материалов - Блок 2. ООП"},
	{Key: "block3", Label: "📚 Изучение материалов - Блок 3. Конкурентность", Value: "Изучение материалов - Блок 3. Конкурентность"},
	{Key: "block4", Label: "📚 Изучение материалов - Блок 4. Инфраструктура", Value: "Изучение материалов - Блок 4. Инфраструктура"},
	{Key: "legend", Label: "📖 Изучение легенды", Value: "Изучение легенды"},
	{Key: "fake_resume", Label: "💼 Поиск работы на тренировочном резюме", Value: "Поиск работы на фейк резюме"},
	{Key: "real_resume", Label: "💼 Поиск работы на реальном резюме", Value: "Поиск работы на реальном резюме"},
}

// StageByKey looks a stage up by its callback key.
func StageByKey(key string) (Stage, bool) {
	for _, s := range Stages {
		if s.Key == key {
			return s, true
		}
	}
	return Stage{}, false
}
