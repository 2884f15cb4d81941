package world

// BlockID идентификатор типа блока classic
type BlockID = byte

// Блоки classic protocol 7 (0..49)
const (
	BlockAir         BlockID = 0
	BlockStone       BlockID = 1
	BlockGrass       BlockID = 2
	BlockDirt        BlockID = 3
	BlockCobblestone BlockID = 4
	BlockPlanks      BlockID = 5
	BlockSapling     BlockID = 6
	BlockSolid       BlockID = 7 // admincrete
	BlockWater       BlockID = 8
	BlockStillWater  BlockID = 9
	BlockLava        BlockID = 10
	BlockStillLava   BlockID = 11
	BlockSand        BlockID = 12
	BlockGravel      BlockID = 13
	BlockGoldOre     BlockID = 14
	BlockIronOre     BlockID = 15
	BlockCoalOre     BlockID = 16
	BlockLog         BlockID = 17
	BlockLeaves      BlockID = 18
	BlockSponge      BlockID = 19
	BlockGlass       BlockID = 20
	BlockFlower      BlockID = 37
	BlockRose        BlockID = 38
	BlockObsidian    BlockID = 49
)

// MaxBlockID наибольший допустимый идентификатор блока
const MaxBlockID BlockID = BlockObsidian

// BlockDelete тег удаления, присылаемый некоторыми клиентами вместо id
const BlockDelete byte = 255

// IsDynamic сообщает, является ли блок текущей жидкостью (water/lava),
// которую клиентам ставить нельзя.
func IsDynamic(id BlockID) bool {
	return id == BlockWater || id == BlockLava
}
