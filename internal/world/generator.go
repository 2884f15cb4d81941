package world

import (
	"math/rand"

	"github.com/annel0/blockverse/internal/util"
)

// Generator генерирует ландшафт новых миров
type Generator struct {
	Seed          int64   // Сид для генерации шума
	NoiseScale    float64 // Масштаб основного шума (высота)
	Amplitude     float64 // Разброс высот относительно уровня моря, в долях высоты мира
	ForestDensity float64 // Плотность деревьев на траве (от 0 до 1)
}

// NewGenerator создаёт генератор мира
func NewGenerator(seed int64) *Generator {
	return &Generator{
		Seed:          seed,
		NoiseScale:    0.03, // Настройка сглаженности ландшафта
		Amplitude:     0.25,
		ForestDensity: 0.01,
	}
}

// Generate создаёт мир размеров x*y*z. Уровень моря на половине высоты,
// нижний слой из admincrete.
func (g *Generator) Generate(id string, x, y, z int) *World {
	store := NewBlockStore(x, y, z)
	noise := util.NewNoise(g.Seed)
	rng := rand.New(rand.NewSource(g.Seed))

	sea := y / 2
	spawnHeight := sea
	var trees [][3]int

	for gx := 0; gx < x; gx++ {
		for gz := 0; gz < z; gz++ {
			n := noise.Noise2D(float64(gx)*g.NoiseScale, float64(gz)*g.NoiseScale)
			height := sea + int((n-0.5)*2*g.Amplitude*float64(y))
			if height < 1 {
				height = 1
			}
			if height > y-2 {
				height = y - 2
			}

			for gy := 0; gy < y; gy++ {
				var blk BlockID
				switch {
				case gy == 0:
					blk = BlockSolid
				case gy < height-3:
					blk = BlockStone
				case gy < height:
					blk = BlockDirt
				case gy == height && height >= sea:
					blk = BlockGrass
				case gy == height:
					blk = BlockSand
				case gy <= sea:
					blk = BlockStillWater
				default:
					blk = BlockAir
				}
				// Ошибка невозможна: координаты внутри размеров
				_, _ = store.Set(gx, gy, gz, blk)
			}

			if height >= sea && height+5 < y && rng.Float64() < g.ForestDensity {
				trees = append(trees, [3]int{gx, height + 1, gz})
			}

			if gx == x/2 && gz == z/2 {
				spawnHeight = height + 1
				if spawnHeight <= sea {
					spawnHeight = sea + 1
				}
			}
		}
	}

	// Деревья ставятся после рельефа, чтобы соседние столбцы не затёрли листву
	for _, t := range trees {
		g.plantTree(store, t[0], t[1], t[2])
	}

	w := New(id, store)
	w.spawn = Spawn{X: x / 2, Y: spawnHeight + 1, Z: z / 2}
	return w
}

func (g *Generator) plantTree(store *BlockStore, x, y, z int) {
	for dy := 0; dy < 4; dy++ {
		_, _ = store.Set(x, y+dy, z, BlockLog)
	}
	for dx := -1; dx <= 1; dx++ {
		for dz := -1; dz <= 1; dz++ {
			if dx == 0 && dz == 0 {
				continue
			}
			// вне границ Set вернёт ErrOutOfBounds, листья просто не появятся
			_, _ = store.Set(x+dx, y+3, z+dz, BlockLeaves)
		}
	}
	_, _ = store.Set(x, y+4, z, BlockLeaves)
}

// Flat создаёт плоский мир: грунт до половины высоты и трава сверху
func Flat(id string, x, y, z int) *World {
	store := NewBlockStore(x, y, z)
	ground := y / 2
	for gy := 0; gy < ground; gy++ {
		var blk BlockID = BlockDirt
		if gy == ground-1 {
			blk = BlockGrass
		}
		for gz := 0; gz < z; gz++ {
			for gx := 0; gx < x; gx++ {
				_, _ = store.Set(gx, gy, gz, blk)
			}
		}
	}
	w := New(id, store)
	w.spawn = Spawn{X: x / 2, Y: ground + 1, Z: z / 2}
	return w
}
