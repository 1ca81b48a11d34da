package persona

// Persona captures a potential-customer archetype shown in the wizard.
type Persona struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	Segment   string `json:"segment"`             // 分析指令中使用的用户群描述
	AvatarURL string `json:"avatarUrl,omitempty"` // 展示用头像
}

// 默认的两类用户群标识。
const (
	TechAdventurer = "tech_adventurer"
	BusinessElite  = "business_elite"
)

// Seed provides the two customer segments used by the demo.
func Seed() []Persona {
	return []Persona{
		{
			ID:        TechAdventurer,
			Name:      "小雅",
			Title:     "iCAR V23 潜在用户",
			Segment:   "科技冒险家 (iCAR V23)",
			AvatarURL: "https://images.unsplash.com/photo-1580489944761-15a19d654956?q=80&w=466&auto=format&fit=crop",
		},
		{
			ID:        BusinessElite,
			Name:      "李总",
			Title:     "星纪元 ES 潜在用户",
			Segment:   "商务新锐 (星纪元 ES)",
			AvatarURL: "https://images.unsplash.com/photo-1560250097-0b93528c311a?q=80&w=387&auto=format&fit=crop",
		},
	}
}
