package feedback

import "github.com/zhouzirui/concept-studio/backend/internal/model/persona"

// Provider returns the customer comments collected for a persona.
type Provider interface {
	Comments(personaID string) []string
}

// StaticProvider serves a fixed comment corpus keyed by persona id.
type StaticProvider struct {
	comments map[string][]string
}

// NewStaticProvider copies the supplied corpus.
func NewStaticProvider(corpus map[string][]string) *StaticProvider {
	copied := make(map[string][]string, len(corpus))
	for key, items := range corpus {
		copied[key] = append([]string(nil), items...)
	}
	return &StaticProvider{comments: copied}
}

// Comments returns a copy of the comments for personaID, or nil when unknown.
func (p *StaticProvider) Comments(personaID string) []string {
	items, ok := p.comments[personaID]
	if !ok {
		return nil
	}
	return append([]string(nil), items...)
}

// Seed is the simulated comment corpus aggregated at the first step.
func Seed() map[string][]string {
	return map[string][]string{
		persona.TechAdventurer: {
			"iCAR V23这方盒子造型太对我胃口了！开出去回头率超高。",
			"后备箱空间真的大，我家金毛的航空箱终于能轻松放下了，赞！#宠物友好",
			"车机系统要是能深度适配一下华为鸿蒙就好了，现在感觉有点割裂。",
			"周末开去郊外野营，轻度越野完全没问题，底盘很扎实。",
			"仪表盘的UI设计有点过于卡通了，希望能有更科技感的选项。",
			"看B站‘硬核评车’的拆解了，用料还挺实在的，有点心动。",
			"电池续航在市区开还行，但跑高速掉得有点快啊。",
			"朋友的小米SU7车机是真的流畅，iCAR啥时候能OTA升级一下？",
			"喜欢这种有点复古又有点赛博朋克的感觉，设计师很有想法。",
			"希望增加一个220V对外放电功能，露营的时候太需要了。",
		},
		persona.BusinessElite: {
			"星纪元ES的外观很大气，开去见客户很有面子。",
			"座椅按摩功能跑长途太舒服了，是我最喜欢的功能，没有之一。",
			"后排要是能有个小桌板就完美了，有时候需要在车上用笔记本回邮件。",
			"内饰用料很高级，Nappa皮质感不错，但新车味道稍微有点大。",
			"智能驾驶辅助在高速上很好用，很稳，让人放心。",
			"听商业伙伴推荐才来看的，他说比他的BBA开起来舒服。",
			"能耗控制得不错，对于这个尺寸的电车来说算惊喜了。",
			"中控大屏的逻辑希望能再简化一点，有些常用功能藏得比较深。",
			"空气悬挂好评，过减速带的时候很从容，高级感一下就上来了。",
			"希望OTA能快点更新哨兵模式，停车安全很重要。",
		},
	}
}
