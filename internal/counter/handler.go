package counter

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/chainproof/chainproof/internal/chaintest"
)

// ErrInvalidAmount mirrors the program's InvalidAmount guard.
var ErrInvalidAmount = fmt.Errorf("custom program error: InvalidAmount")

// Handler executes counter instructions against a chaintest ledger,
// reproducing the deployed program's semantics and log shape. Account order
// per instruction: counter, user, system program.
func Handler(accts chaintest.Accounts, ins chaintest.Instruction) ([]string, error) {
	logs := []string{fmt.Sprintf("Program %s invoke [1]", ProgramID)}

	if len(ins.Data) < 8 {
		return logs, fmt.Errorf("instruction data too short")
	}
	if len(ins.Accounts) < 2 {
		return logs, fmt.Errorf("not enough accounts")
	}
	counterAddr, user := ins.Accounts[0], ins.Accounts[1]
	if !ins.Signers[user] {
		return logs, fmt.Errorf("user account must sign")
	}

	tag := ins.Data[:8]
	switch {
	case bytes.Equal(tag, instructionTag("initialize")):
		logs = append(logs, "Program log: Instruction: Initialize")
		if _, exists := accts[counterAddr]; exists {
			return logs, fmt.Errorf("account %s already in use", counterAddr)
		}
		_, bump, err := DeriveCounter(user)
		if err != nil {
			return logs, err
		}
		accts[counterAddr] = encodeState(state{Count: 0, Bump: bump})

	case bytes.Equal(tag, instructionTag("increment")):
		logs = append(logs, "Program log: Instruction: Increment")
		amount, err := amountArg(ins.Data)
		if err != nil {
			return logs, err
		}
		s, err := loadState(accts, counterAddr)
		if err != nil {
			return logs, err
		}
		if amount == 0 || amount < s.Count {
			return append(logs, invalidAmountLog()), ErrInvalidAmount
		}
		s.Count += amount
		accts[counterAddr] = encodeState(s)

	case bytes.Equal(tag, instructionTag("decrement")):
		logs = append(logs, "Program log: Instruction: Decrement")
		amount, err := amountArg(ins.Data)
		if err != nil {
			return logs, err
		}
		s, err := loadState(accts, counterAddr)
		if err != nil {
			return logs, err
		}
		if amount == 0 || amount > s.Count {
			return append(logs, invalidAmountLog()), ErrInvalidAmount
		}
		s.Count -= amount
		accts[counterAddr] = encodeState(s)

	default:
		return logs, fmt.Errorf("unknown instruction discriminator")
	}

	return append(logs, fmt.Sprintf("Program %s success", ProgramID)), nil
}

func amountArg(data []byte) (uint64, error) {
	if len(data) != 16 {
		return 0, fmt.Errorf("expected 8-byte amount argument")
	}
	return binary.LittleEndian.Uint64(data[8:]), nil
}

func loadState(accts chaintest.Accounts, addr solana.PublicKey) (state, error) {
	data, ok := accts[addr]
	if !ok {
		return state{}, fmt.Errorf("counter account %s not initialized", addr)
	}
	return decodeState(data)
}

func invalidAmountLog() string {
	return "Program log: AnchorError occurred. Error Code: InvalidAmount. Error Number: 6000. Error Message: Amount must be greater than 0."
}
