package catalog

import "time"

// SampleCatalog is the built-in demo set of five Moscow exhibitions.
// Date windows are pinned relative to now so the demo never expires.
func SampleCatalog(now time.Time) []Exhibition {
	window := func(startMonths, endMonths int) (Date, Date) {
		return DateOf(now.AddDate(0, startMonths, 0)), DateOf(now.AddDate(0, endMonths, 0))
	}

	tretyakovStart, tretyakovEnd := window(-2, 4)
	momaStart, momaEnd := window(-1, 3)
	pushkinStart, pushkinEnd := window(-1, 5)
	cosmosStart, cosmosEnd := window(-3, 6)
	gmsStart, gmsEnd := window(-2, 5)

	return []Exhibition{
		{
			ID:            "tretyakov-001",
			Museum:        "Третьяковская галерея",
			Title:         "Импрессионисты и постимпрессионисты",
			Description:   "Уникальная выставка работ великих импрессионистов и постимпрессионистов XIX-XX веков. В экспозиции представлены полотна Моне, Ренуара, Дега, Сезанна, Ван Гога, Гогена. Выставка позволяет проследить эволюцию живописного искусства от классического импрессионизма к радикальным экспериментам постимпрессионистов. Особое внимание уделено влиянию фотографии на развитие живописи того периода. Интерактивные зоны позволяют посетителям узнать больше о техниках художников и историческом контексте создания произведений.",
			StartDate:     tretyakovStart,
			EndDate:       tretyakovEnd,
			Tags:          []string{"импрессионизм", "живопись", "фотография", "история", "интерактив"},
			Location:      "Лаврушинский переулок, 10",
			Accessibility: []string{"лифт", "пандусы", "аудиогид"},
			Audience:      []string{"взрослые", "подростки", "семья"},
		},
		{
			ID:            "moma-002",
			Museum:        "Московский музей современного искусства",
			Title:         "Цифровые горизонты: современное искусство и технологии",
			Description:   "Выставка представляет работы современных художников, использующих цифровые технологии в своем творчестве. Инсталляции с дополненной реальностью, генеративное искусство, NFT-коллекции и интерактивные медиа-скульптуры. Особое внимание уделено взаимодействию искусства и искусственного интеллекта. Посетители могут не только наблюдать, но и участвовать в создании цифровых арт-объектов. Мастер-классы по цифровой фотографии и визуальным эффектам проходят каждые выходные.",
			StartDate:     momaStart,
			EndDate:       momaEnd,
			Tags:          []string{"современное искусство", "технологии", "интерактив", "фотография", "VR"},
			Location:      "Гоголевский бульвар, 10",
			Accessibility: []string{"лифт", "пандусы", "тактильные экспонаты"},
			Audience:      []string{"молодежь", "взрослые", "подростки"},
		},
		{
			ID:            "pushkin-003",
			Museum:        "Музей изобразительных искусств им. Пушкина",
			Title:         "Фотографический портрет: от дагерротипа до цифры",
			Description:   "Масштабная выставка, прослеживающая развитие фотографического портрета с 1840-х годов до наших дней. В экспозиции представлены редкие дагерротипы, классические портреты начала XX века, работы знаменитых фотографов-авангардистов, а также современные цифровые проекты. Особый раздел посвящен портретной фотографии в контексте семейной истории. Интерактивные стенды позволяют ознакомиться с техникой создания фотопортретов разных эпох. Подходит для романтических свиданий и семейных посещений.",
			StartDate:     pushkinStart,
			EndDate:       pushkinEnd,
			Tags:          []string{"фотография", "история", "портрет", "семья", "романтика"},
			Location:      "Волхонка, 12",
			Accessibility: []string{"лифт", "пандусы", "аудиогид"},
			Audience:      []string{"семья", "взрослые", "подростки"},
		},
		{
			ID:            "cosmos-004",
			Museum:        "Музей космонавтики",
			Title:         "Космос глазами художников",
			Description:   "Уникальная выставка, объединяющая науку и искусство в освещении темы космоса. Представлены работы художников разных эпох, вдохновленных космическими открытиями: от ранних фантастических иллюстраций до современных инсталляций с использованием данных с космических телескопов. Интерактивные зоны позволяют посетителям создать собственные космические пейзажи с помощью генеративных алгоритмов. Особенно интересно для молодежи и семей с детьми. Есть возможность сделать уникальные фотографии на фоне космических инсталляций.",
			StartDate:     cosmosStart,
			EndDate:       cosmosEnd,
			Tags:          []string{"космос", "наука", "искусство", "интерактив", "фотография", "семья"},
			Location:      "Профсоюзная улица, 123",
			Accessibility: []string{"лифт", "пандусы", "детские площадки"},
			Audience:      []string{"семья", "дети", "подростки", "взрослые"},
		},
		{
			ID:            "gms-005",
			Museum:        "Государственный музей архитектуры им. Щусева",
			Title:         "Поэзия пространства: архитектура и литература",
			Description:   "Выставка исследует тесную связь между архитектурой и литературой через века. Представлены архитектурные чертежи, вдохновленные литературными произведениями, а также книги, повлиявшие на формирование архитектурных стилей. Интерактивные инсталляции позволяют посетителям 'пройтись' по знаменитым литературным пространствам. Особый раздел посвящен московской архитектуре в русской поэзии. Подходит для интеллектуальных свиданий и посещений с пожилыми родственниками, интересующимися культурой и историей.",
			StartDate:     gmsStart,
			EndDate:       gmsEnd,
			Tags:          []string{"архитектура", "литература", "поэзия", "история", "интеллектуальное"},
			Location:      "улица Воздвиженка, 5/25",
			Accessibility: []string{"лифт", "пандусы", "места отдыха"},
			Audience:      []string{"взрослые", "пожилые", "интеллектуалы"},
		},
	}
}
