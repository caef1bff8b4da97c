package chain

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// sellDiscriminator tags the instruction's opcode in the bonding-curve
// AMM's instruction data, preceding the borsh-encoded arguments.
var sellDiscriminator = [8]byte{0x33, 0xe6, 0x85, 0xa4, 0x01, 0x7f, 0x83, 0xad}

// buyDiscriminator tags the buy opcode the same way sellDiscriminator
// tags sell.
var buyDiscriminator = [8]byte{0x66, 0x06, 0x3d, 0x12, 0x01, 0xda, 0xeb, 0xea}

var associatedTokenProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

// createAssociatedTokenAccountInstruction builds the SPL Associated
// Token Account program's Create instruction. The instruction takes no
// data beyond the program's implicit opcode.
func createAssociatedTokenAccountInstruction(payer, ata, owner, mint solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		associatedTokenProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(payer, true, true),
			solana.NewAccountMeta(ata, true, false),
			solana.NewAccountMeta(owner, false, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
		},
		[]byte{},
	)
}

const computeUnitLimit = 100_000

var computeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

const (
	computeBudgetSetComputeUnitLimit uint8 = 2
	computeBudgetSetComputeUnitPrice uint8 = 3
)

func setComputeUnitLimitInstruction(units uint32) solana.Instruction {
	data := make([]byte, 5)
	data[0] = computeBudgetSetComputeUnitLimit
	binary.LittleEndian.PutUint32(data[1:5], units)
	return solana.NewInstruction(computeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

func setComputeUnitPriceInstruction(microLamports uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = computeBudgetSetComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:9], microLamports)
	return solana.NewInstruction(computeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

// BuildSellInstructions assembles the instruction list for a curve
// sell (§4.5 step 5): an optional priority-fee instruction, a
// compute-unit-limit instruction, and the sell instruction itself.
func (c *Client) BuildSellInstructions(
	mint solana.PublicKey,
	seller solana.PublicKey,
	sellerTokenAccount solana.PublicKey,
	bondingCurve solana.PublicKey,
	accounts BondingCurveAccounts,
	tokenAmount uint64,
	minBaseOutput uint64,
	priorityFeeMicroLamports uint64,
) []solana.Instruction {
	var instructions []solana.Instruction

	if priorityFeeMicroLamports > 0 {
		instructions = append(instructions, setComputeUnitPriceInstruction(priorityFeeMicroLamports))
	}

	instructions = append(instructions, setComputeUnitLimitInstruction(computeUnitLimit))

	data := make([]byte, 8+8+8)
	copy(data[0:8], sellDiscriminator[:])
	binary.LittleEndian.PutUint64(data[8:16], tokenAmount)
	binary.LittleEndian.PutUint64(data[16:24], minBaseOutput)

	sellIx := solana.NewInstruction(
		c.launchpadProgram,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(accounts.Global, false, false),
			solana.NewAccountMeta(accounts.Fees, true, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(bondingCurve, true, false),
			solana.NewAccountMeta(accounts.AssociatedBondingCurve, true, false),
			solana.NewAccountMeta(sellerTokenAccount, true, false),
			solana.NewAccountMeta(seller, true, true),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
			solana.NewAccountMeta(accounts.CreatorVault, true, false),
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
		},
		data,
	)
	instructions = append(instructions, sellIx)

	return instructions
}

// BuildBuyInstructions assembles the instruction list for a curve buy
// (§4.7 Executor-agent "enter" path): an optional priority-fee
// instruction, a compute-unit-limit instruction, an associated-token-
// account-create instruction when the buyer has none yet, and the buy
// instruction itself.
func (c *Client) BuildBuyInstructions(
	mint solana.PublicKey,
	buyer solana.PublicKey,
	buyerTokenAccount solana.PublicKey,
	createTokenAccount bool,
	bondingCurve solana.PublicKey,
	accounts BondingCurveAccounts,
	baseAmount uint64,
	minTokenOutput uint64,
	priorityFeeMicroLamports uint64,
) []solana.Instruction {
	var instructions []solana.Instruction

	if priorityFeeMicroLamports > 0 {
		instructions = append(instructions, setComputeUnitPriceInstruction(priorityFeeMicroLamports))
	}
	instructions = append(instructions, setComputeUnitLimitInstruction(computeUnitLimit))

	if createTokenAccount {
		instructions = append(instructions, createAssociatedTokenAccountInstruction(buyer, buyerTokenAccount, buyer, mint))
	}

	data := make([]byte, 8+8+8)
	copy(data[0:8], buyDiscriminator[:])
	binary.LittleEndian.PutUint64(data[8:16], baseAmount)
	binary.LittleEndian.PutUint64(data[16:24], minTokenOutput)

	buyIx := solana.NewInstruction(
		c.launchpadProgram,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(accounts.Global, false, false),
			solana.NewAccountMeta(accounts.Fees, true, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(bondingCurve, true, false),
			solana.NewAccountMeta(accounts.AssociatedBondingCurve, true, false),
			solana.NewAccountMeta(buyerTokenAccount, true, false),
			solana.NewAccountMeta(buyer, true, true),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
			solana.NewAccountMeta(accounts.CreatorVault, true, false),
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
		},
		data,
	)
	instructions = append(instructions, buyIx)

	return instructions
}

// BuildTransaction assembles and returns an unsigned transaction from
// the given instructions, blockhash, and fee payer.
func BuildTransaction(instructions []solana.Instruction, blockhash solana.Hash, payer solana.PublicKey) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	return tx, nil
}
